package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/snapmsg/backend/internal/apperror"
	"go.uber.org/zap"
)

const (
	defaultServiceTimeout = 5 * time.Second
	pathEmailFromToken    = "/auth/get-email-from-token"
)

var (
	errMissingServiceURL     = errors.New("auth service url is required")
	errMissingToken          = errors.New("token must not be empty")
	errMissingEmail          = errors.New("auth service returned no email")
	ErrInvalidResolverConfig = errors.New("auth: invalid service resolver config")
	errRejectedByAuthService = errors.New("auth service rejected token")
	errMalformedAuthResponse = errors.New("auth service returned malformed body")
)

type ServiceResolverConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// ServiceResolver resolves tokens by calling the external auth service.
type ServiceResolver struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

type tokenRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

// NewServiceResolver validates cfg and constructs a ServiceResolver.
func NewServiceResolver(cfg ServiceResolverConfig) (*ServiceResolver, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResolverConfig, errMissingServiceURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultServiceTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServiceResolver{
		endpoint:   baseURL + pathEmailFromToken,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Resolve implements Resolver. The returned identity may lack a username when
// the auth service does not report one.
func (r *ServiceResolver) Resolve(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, apperror.ErrUnauthorized.WithCause(errMissingToken)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(tokenRequest{Token: token})
	if err != nil {
		return Identity{}, apperror.ErrUpstream.WithCause(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return Identity{}, apperror.ErrUpstream.WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	response, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Warn("auth service request failed", zap.Error(err))
		return Identity{}, apperror.ErrUpstream.WithCause(err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return Identity{}, apperror.ErrUnauthorized.WithCause(fmt.Errorf("%w: status %d", errRejectedByAuthService, response.StatusCode))
	}

	var payload tokenResponse
	if err := json.NewDecoder(response.Body).Decode(&payload); err != nil {
		r.logger.Warn("auth service returned malformed body", zap.Error(err))
		return Identity{}, apperror.ErrUpstream.WithCause(fmt.Errorf("%w: %v", errMalformedAuthResponse, err))
	}
	email := strings.TrimSpace(payload.Email)
	if email == "" {
		return Identity{}, apperror.ErrUnauthorized.WithCause(errMissingEmail)
	}
	return Identity{
		Email:    email,
		Username: strings.TrimSpace(payload.Username),
		Token:    token,
	}, nil
}
