// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the kokoro-auth server configuration from a YAML file
// and KOKORO_* environment variables. The configuration is read once at
// startup and not modified afterwards.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load. Nested keys
// use underscores, e.g. KOKORO_SERVER_BASE_URL.
const EnvPrefix = "KOKORO"

// MinSecretLength is the minimum length of the signing secret.
const MinSecretLength = 32

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Secret    string          `mapstructure:"secret" yaml:"secret"`
	Cookies   CookieConfig    `mapstructure:"cookies" yaml:"cookies"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	OAuth     OAuthConfig     `mapstructure:"oauth" yaml:"oauth"`
	Connect   ConnectConfig   `mapstructure:"connect" yaml:"connect"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
	// BaseURL is the externally visible origin, used to build provider
	// redirect URLs.
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// TokenRateLimit is the sustained requests per second allowed per client
	// IP on the token endpoint.
	TokenRateLimit float64 `mapstructure:"token_rate_limit" yaml:"token_rate_limit"`
	TokenRateBurst int     `mapstructure:"token_rate_burst" yaml:"token_rate_burst"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// CookieConfig sets the attributes shared by every cookie the server writes.
type CookieConfig struct {
	Domain string `mapstructure:"domain" yaml:"domain"`
	// Insecure drops the Secure attribute, for local development over HTTP.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`
}

// SessionConfig configures first-party sessions.
type SessionConfig struct {
	Lifetime         time.Duration `mapstructure:"lifetime" yaml:"lifetime"`
	RefreshThreshold time.Duration `mapstructure:"refresh_threshold" yaml:"refresh_threshold"`
	// CredentialLengthThreshold separates session tokens from access tokens
	// presented as bearer credentials.
	CredentialLengthThreshold int `mapstructure:"credential_length_threshold" yaml:"credential_length_threshold"`
}

// OAuthConfig configures the authorization server.
type OAuthConfig struct {
	Issuer         string        `mapstructure:"issuer" yaml:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" yaml:"access_token_ttl"`
	AuthCodeTTL    time.Duration `mapstructure:"auth_code_ttl" yaml:"auth_code_ttl"`
	Scopes         []string      `mapstructure:"scopes" yaml:"scopes"`
}

// ConnectConfig configures the external-provider connect flow.
type ConnectConfig struct {
	MaxAccounts int    `mapstructure:"max_accounts" yaml:"max_accounts"`
	AccountPath string `mapstructure:"account_path" yaml:"account_path"`
}

// RedisConfig locates the sync job queue. An empty Addr disables enqueueing.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Key      string `mapstructure:"key" yaml:"key"`
}

// ProvidersConfig holds the OAuth credentials of each external provider.
// A provider without a client id is disabled.
type ProvidersConfig struct {
	Google         ClientCredentials `mapstructure:"google" yaml:"google"`
	GoogleCalendar ClientCredentials `mapstructure:"google_calendar" yaml:"google_calendar"`
	GooglePeople   ClientCredentials `mapstructure:"google_people" yaml:"google_people"`
	Linear         ClientCredentials `mapstructure:"linear" yaml:"linear"`
}

// ClientCredentials are the OAuth client credentials issued by a provider.
type ClientCredentials struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
}

// Enabled reports whether the provider is configured.
func (c ClientCredentials) Enabled() bool {
	return c.ClientID != ""
}

// Default returns the configuration used for unset fields.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			BaseURL:         "http://localhost:8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			TokenRateLimit:  5,
			TokenRateBurst:  10,
		},
		Database: DatabaseConfig{Path: "kokoro.db"},
		Session: SessionConfig{
			Lifetime:                  30 * 24 * time.Hour,
			RefreshThreshold:          15 * 24 * time.Hour,
			CredentialLengthThreshold: 40,
		},
		OAuth: OAuthConfig{
			AccessTokenTTL: time.Hour,
			AuthCodeTTL:    10 * time.Minute,
			Scopes: []string{
				"profile",
				"calendar:read", "calendar:write",
				"contacts:read", "contacts:write",
				"tasks:read", "tasks:write",
			},
		},
		Connect: ConnectConfig{
			MaxAccounts: 5,
			AccountPath: "/account/integrations",
		},
		Redis: RedisConfig{Key: "kokoro:sync:jobs"},
	}
}

// keys lists every configuration key so that environment variables are
// honored even when the key is absent from the file.
var keys = []string{
	"server.address", "server.base_url", "server.read_timeout", "server.write_timeout",
	"server.shutdown_timeout", "server.token_rate_limit", "server.token_rate_burst",
	"database.path",
	"secret",
	"cookies.domain", "cookies.insecure",
	"session.lifetime", "session.refresh_threshold", "session.credential_length_threshold",
	"oauth.issuer", "oauth.access_token_ttl", "oauth.auth_code_ttl", "oauth.scopes",
	"connect.max_accounts", "connect.account_path",
	"redis.addr", "redis.username", "redis.password", "redis.db", "redis.key",
	"providers.google.client_id", "providers.google.client_secret",
	"providers.google_calendar.client_id", "providers.google_calendar.client_secret",
	"providers.google_people.client_id", "providers.google_people.client_secret",
	"providers.linear.client_id", "providers.linear.client_secret",
}

// Load reads the configuration from path, which may be empty, overlays
// environment variables, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	// Env lists arrive as a single space-separated string.
	if len(cfg.OAuth.Scopes) == 1 && strings.Contains(cfg.OAuth.Scopes[0], " ") {
		cfg.OAuth.Scopes = strings.Fields(cfg.OAuth.Scopes[0])
	}

	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields from Default. Set values are kept.
func (c *Config) ApplyDefaults() error {
	if err := mergo.Merge(c, Default()); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	return nil
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Secret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("secret must be at least %d bytes", MinSecretLength))
	}
	if u, err := url.Parse(c.Server.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.base_url %q must be an absolute http(s) URL", c.Server.BaseURL))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Server.TokenRateLimit <= 0 || c.Server.TokenRateBurst <= 0 {
		errs = append(errs, errors.New("server token rate limit and burst must be positive"))
	}
	if c.Session.RefreshThreshold >= c.Session.Lifetime {
		errs = append(errs, errors.New("session.refresh_threshold must be shorter than session.lifetime"))
	}
	if c.Connect.MaxAccounts <= 0 {
		errs = append(errs, errors.New("connect.max_accounts must be positive"))
	}
	if !strings.HasPrefix(c.Connect.AccountPath, "/") {
		errs = append(errs, errors.New("connect.account_path must be an absolute path"))
	}

	for name, creds := range c.Providers.all() {
		if creds.Enabled() && creds.ClientSecret == "" {
			errs = append(errs, fmt.Errorf("providers.%s.client_secret is required when client_id is set", name))
		}
	}

	return errors.Join(errs...)
}

func (p ProvidersConfig) all() map[string]ClientCredentials {
	return map[string]ClientCredentials{
		"google":          p.Google,
		"google_calendar": p.GoogleCalendar,
		"google_people":   p.GooglePeople,
		"linear":          p.Linear,
	}
}

// CallbackURL returns the absolute URL of path under the base URL.
func (c *Config) CallbackURL(path string) string {
	return strings.TrimSuffix(c.Server.BaseURL, "/") + path
}

// SecureCookies reports whether cookies carry the Secure attribute.
func (c *Config) SecureCookies() bool {
	return !c.Cookies.Insecure
}
