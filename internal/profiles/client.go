// Package profiles talks to the external profile service.
package profiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/snapmsg/backend/internal/apperror"
	"go.uber.org/zap"
)

const (
	defaultTimeout        = 5 * time.Second
	pathByUsername        = "/profiles/by-username"
	pathByEmail           = "/profiles/by-email"
	pathFollowedEmails    = "/profiles/followed-emails"
	pathVerifiedUsernames = "/profiles/verified-usernames"
	headerToken           = "token"
	headerAccept          = "Accept"
	mediaTypeJSON         = "application/json"
)

var (
	errMissingBaseURL   = errors.New("profile service url is required")
	ErrInvalidConfig    = errors.New("profiles: invalid client config")
	errUnexpectedStatus = errors.New("unexpected status")
)

// Profile is the subset of a user profile consumed by snaps.
type Profile struct {
	Email      string   `json:"email"`
	Username   string   `json:"username"`
	Interests  []string `json:"interests"`
	IsVerified bool     `json:"is_verified"`
}

type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is an HTTP client for the profile service.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient validates cfg and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, errMissingBaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

func (c *Client) ByUsername(ctx context.Context, username string) (Profile, error) {
	var profile Profile
	query := url.Values{"username": []string{username}}
	if err := c.get(ctx, pathByUsername, query, "", &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func (c *Client) ByEmail(ctx context.Context, email string) (Profile, error) {
	var profile Profile
	query := url.Values{"email": []string{email}}
	if err := c.get(ctx, pathByEmail, query, "", &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// FollowedEmails returns the emails of the users username follows.
func (c *Client) FollowedEmails(ctx context.Context, token, username string) ([]string, error) {
	var emails []string
	query := url.Values{"username": []string{username}}
	if err := c.get(ctx, pathFollowedEmails, query, token, &emails); err != nil {
		return nil, err
	}
	if emails == nil {
		emails = []string{}
	}
	return emails, nil
}

// VerifiedUsernames returns the usernames carrying a verification badge.
func (c *Client) VerifiedUsernames(ctx context.Context) ([]string, error) {
	var usernames []string
	if err := c.get(ctx, pathVerifiedUsernames, nil, "", &usernames); err != nil {
		return nil, err
	}
	if usernames == nil {
		usernames = []string{}
	}
	return usernames, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, token string, target any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return apperror.ErrUpstream.WithCause(err)
	}
	req.Header.Set(headerAccept, mediaTypeJSON)
	if token != "" {
		req.Header.Set(headerToken, token)
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("profile service request failed", zap.String("path", path), zap.Error(err))
		return apperror.ErrUpstream.WithCause(err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusNotFound:
		return apperror.ErrProfileNotFound
	case response.StatusCode != http.StatusOK:
		c.logger.Warn("profile service returned unexpected status",
			zap.String("path", path),
			zap.Int("status", response.StatusCode))
		return apperror.ErrUpstream.WithCause(fmt.Errorf("%w %d from %s", errUnexpectedStatus, response.StatusCode, path))
	}

	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		c.logger.Warn("profile service returned malformed body", zap.String("path", path), zap.Error(err))
		return apperror.ErrUpstream.WithCause(err)
	}
	return nil
}
