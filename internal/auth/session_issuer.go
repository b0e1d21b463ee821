package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 24 * time.Hour

var (
	errMissingSigningSecret = errors.New("signing secret must be provided")
	errMissingEmailClaim    = errors.New("user email must be provided")
)

type SessionIssuerConfig struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// SessionIssuer signs session tokens accepted by SessionValidator.
type SessionIssuer struct {
	signingSecret []byte
	issuer        string
	ttl           time.Duration
	clock         func() time.Time
}

// NewSessionIssuer constructs a SessionIssuer with sane defaults.
func NewSessionIssuer(cfg SessionIssuerConfig) *SessionIssuer {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultSessionIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SessionIssuer{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		ttl:           ttl,
		clock:         clock,
	}
}

// Issue produces a signed JWT for identity and its expiry time.
func (i *SessionIssuer) Issue(identity Identity) (string, time.Time, error) {
	if len(i.signingSecret) == 0 {
		return "", time.Time{}, errMissingSigningSecret
	}
	email := strings.TrimSpace(identity.Email)
	if email == "" {
		return "", time.Time{}, errMissingEmailClaim
	}

	now := i.clock().UTC()
	expiresAt := now.Add(i.ttl).UTC()
	claims := SessionClaims{
		UserEmail: email,
		UserName:  strings.TrimSpace(identity.Username),
		UserRoles: append([]string(nil), identity.Roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.signingSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
