package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/snapmsg/backend/internal/apperror"
)

const (
	// HeaderToken carries the raw token in the service's historical convention.
	HeaderToken         = "token"
	headerAuthorization = "Authorization"
	bearerPrefix        = "Bearer "
	// RoleAdmin grants moderation privileges.
	RoleAdmin = "admin"
)

// Identity is the authenticated caller.
type Identity struct {
	Email    string
	Username string
	Token    string
	Roles    []string
}

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role string) bool {
	for _, candidate := range i.Roles {
		if strings.EqualFold(candidate, role) {
			return true
		}
	}
	return false
}

// Resolver turns a bearer token into an Identity. Implementations return an
// error matching apperror.ErrUnauthorized for rejected tokens.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// TokenFromRequest reads the token header, falling back to a bearer
// Authorization header.
func TokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := strings.TrimSpace(r.Header.Get(HeaderToken)); token != "" {
		return token
	}
	header := strings.TrimSpace(r.Header.Get(headerAuthorization))
	if len(header) > len(bearerPrefix) && strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(header[len(bearerPrefix):])
	}
	return ""
}

// ChainResolver tries each resolver in order and returns the first identity.
// Upstream failures abort the chain; rejections fall through to the next resolver.
type ChainResolver struct {
	resolvers []Resolver
}

// NewChainResolver constructs a ChainResolver, skipping nil entries.
func NewChainResolver(resolvers ...Resolver) *ChainResolver {
	kept := make([]Resolver, 0, len(resolvers))
	for _, resolver := range resolvers {
		if resolver != nil {
			kept = append(kept, resolver)
		}
	}
	return &ChainResolver{resolvers: kept}
}

func (c *ChainResolver) Resolve(ctx context.Context, token string) (Identity, error) {
	lastErr := error(apperror.ErrUnauthorized)
	for _, resolver := range c.resolvers {
		identity, err := resolver.Resolve(ctx, token)
		if err == nil {
			return identity, nil
		}
		if !errors.Is(err, apperror.ErrUnauthorized) {
			return Identity{}, err
		}
		lastErr = err
	}
	return Identity{}, lastErr
}
