package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "SNAPMSG"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "snapmsg.db"
	defaultLogLevel         = "info"
	defaultAuthIssuer       = "snapmsg"
	defaultProfileTimeout   = 5 * time.Second
	defaultMaxMessageLength = 280
	defaultTrendingWindow   = 24 * time.Hour
	defaultTrendingLimit    = 5
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	AllowedOrigins    []string
	DatabasePath      string
	LogLevel          string
	AuthServiceURL    string
	AuthSigningSecret string
	AuthIssuer        string
	ProfileServiceURL string
	ProfileTimeout    time.Duration
	MaxMessageLength  int
	TrendingWindow    time.Duration
	TrendingLimit     int
	AdminEmails       []string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("profile.timeout", defaultProfileTimeout)
	configViper.SetDefault("snaps.max_message_length", defaultMaxMessageLength)
	configViper.SetDefault("trending.window", defaultTrendingWindow)
	configViper.SetDefault("trending.limit", defaultTrendingLimit)
	configViper.SetDefault("moderation.admin_emails", []string{})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		AllowedOrigins:    splitList(configViper.GetStringSlice("http.allowed_origins")),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		AuthServiceURL:    strings.TrimSpace(configViper.GetString("auth.service_url")),
		AuthSigningSecret: configViper.GetString("auth.signing_secret"),
		AuthIssuer:        configViper.GetString("auth.issuer"),
		ProfileServiceURL: strings.TrimSpace(configViper.GetString("profile.service_url")),
		ProfileTimeout:    configViper.GetDuration("profile.timeout"),
		MaxMessageLength:  configViper.GetInt("snaps.max_message_length"),
		TrendingWindow:    configViper.GetDuration("trending.window"),
		TrendingLimit:     configViper.GetInt("trending.limit"),
		AdminEmails:       normalizeEmails(configViper.GetStringSlice("moderation.admin_emails")),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.AuthServiceURL == "" && strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.service_url or auth.signing_secret is required")
	}
	if c.ProfileServiceURL == "" {
		return fmt.Errorf("profile.service_url is required")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("snaps.max_message_length must be positive")
	}
	if c.TrendingWindow <= 0 {
		return fmt.Errorf("trending.window must be positive")
	}
	if c.TrendingLimit <= 0 {
		return fmt.Errorf("trending.limit must be positive")
	}
	if c.ProfileTimeout <= 0 {
		return fmt.Errorf("profile.timeout must be positive")
	}
	return nil
}

// splitList trims entries. Comma separated values from the environment arrive
// as a single element and are split here.
func splitList(raw []string) []string {
	values := make([]string, 0, len(raw))
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				values = append(values, trimmed)
			}
		}
	}
	return values
}

func normalizeEmails(raw []string) []string {
	emails := splitList(raw)
	for i, email := range emails {
		emails[i] = strings.ToLower(email)
	}
	return emails
}
