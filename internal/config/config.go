// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Placeholder OAuth client credentials. They only exist so the console can be
// started locally; Validate rejects them in production.
const (
	PlaceholderClientID     = "console-dev-client"
	PlaceholderClientSecret = "console-dev-secret"
)

// Config holds all application configuration.
type Config struct {
	Port      string
	Env       string // "production" or "development"
	DBPath    string // empty = in-memory store
	StaticDir string // optional prebuilt frontend
	LogLevel  slog.Level

	CORSAllowedOrigins []string

	Upstream UpstreamConfig
	Demo     DemoConfig
	Login    LoginConfig
}

// UpstreamConfig describes the third-party identity and agent API.
type UpstreamConfig struct {
	BaseURL      string
	TokenPath    string
	ListPath     string
	AddPath      string
	EditPath     string
	Scope        string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// DemoConfig is the credential pair that bypasses the upstream API.
type DemoConfig struct {
	Username string
	Password string
}

// LoginConfig throttles login attempts per client address.
type LoginConfig struct {
	RateLimit  int
	RateWindow time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                strings.ToLower(getEnv("APP_ENV", "development")),
		DBPath:             getEnv("DB_PATH", ""),
		StaticDir:          getEnv("STATIC_DIR", ""),
		LogLevel:           getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		Upstream: UpstreamConfig{
			BaseURL:      getEnv("UPSTREAM_BASE_URL", "https://api.example-agents.com"),
			TokenPath:    getEnv("UPSTREAM_TOKEN_PATH", "/oauth/token"),
			ListPath:     getEnv("UPSTREAM_AGENTS_LIST_PATH", "/api/agents"),
			AddPath:      getEnv("UPSTREAM_AGENTS_ADD_PATH", "/api/agents/add"),
			EditPath:     getEnv("UPSTREAM_AGENTS_EDIT_PATH", "/api/agents/edit"),
			Scope:        getEnv("UPSTREAM_SCOPE", "read write"),
			ClientID:     getEnv("CLIENT_ID", PlaceholderClientID),
			ClientSecret: getEnv("CLIENT_SECRET", PlaceholderClientSecret),
			Timeout:      getEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		},
		Demo: DemoConfig{
			Username: getEnv("DEMO_USERNAME", "demo"),
			Password: getEnv("DEMO_PASSWORD", "demo123"),
		},
		Login: LoginConfig{
			RateLimit:  getEnvInt("LOGIN_RATE_LIMIT", 10),
			RateWindow: getEnvDuration("LOGIN_RATE_WINDOW", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL must be an http(s) URL")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be > 0")
	}
	if c.Login.RateLimit <= 0 {
		return fmt.Errorf("LOGIN_RATE_LIMIT must be > 0")
	}
	if c.Login.RateWindow <= 0 {
		return fmt.Errorf("LOGIN_RATE_WINDOW must be > 0")
	}
	if c.IsProduction() && c.UsesPlaceholderCredentials() {
		return fmt.Errorf("CLIENT_ID and CLIENT_SECRET must be set in production")
	}
	return nil
}

// IsProduction returns true when APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return !c.IsProduction()
}

// UsesPlaceholderCredentials reports whether either OAuth client credential is
// still the built-in placeholder.
func (c *Config) UsesPlaceholderCredentials() bool {
	return c.Upstream.ClientID == PlaceholderClientID ||
		c.Upstream.ClientSecret == PlaceholderClientSecret
}

// String returns a string representation of the config (secrets are masked).
func (c *Config) String() string {
	store := "memory"
	if c.DBPath != "" {
		store = "sqlite:" + c.DBPath
	}
	return fmt.Sprintf("Config{Port: %s, Env: %s, Store: %s, Upstream: %s, ClientID: %s, ClientSecret: ***}",
		c.Port, c.Env, store, c.Upstream.BaseURL, c.Upstream.ClientID)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
