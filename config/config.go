package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	RemoteAPI     RemoteAPIConfig
	Session       SessionConfig
	DealLinks     DealLinksConfig
	Locales       LocalesConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// BehindProxy trusts X-Forwarded-For and X-Real-IP for the client address.
	// Leave off unless a reverse proxy overwrites those headers.
	BehindProxy bool
}

// RemoteAPIConfig describes the upstream deals API that owns users and deals.
type RemoteAPIConfig struct {
	BaseURL string
	Timeout time.Duration
	// HydrationTimeout bounds each personal-data lookup made while reading a session.
	HydrationTimeout time.Duration
	// CAFile optionally adds a PEM bundle to the system roots. Certificate
	// verification is never disabled.
	CAFile string
}

// SessionConfig holds signed session cookie configuration
type SessionConfig struct {
	Secret       string
	Issuer       string
	TTL          time.Duration
	CookieName   string
	CookieSecure bool
	Leeway       time.Duration
}

// DealLinksConfig holds the secret used to obscure deal ids in client-visible links
type DealLinksConfig struct {
	Secret string
}

// LocalesConfig lists the locales served under /{lng}/...
type LocalesConfig struct {
	Default   string
	Supported []string
}

// RateLimitConfig throttles credential exchange attempts per client IP
type RateLimitConfig struct {
	LoginPerSecond float64
	LoginBurst     int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

const (
	defaultSessionSecret  = "dev-session-secret-change-me"
	defaultDealLinkSecret = "default_secret_key"
)

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	return load()
}

// NewFromFile loads the given env file before reading the environment.
// A missing file is an error, unlike the implicit .env lookup in New.
func NewFromFile(ctx context.Context, path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("load env file %s: %w", path, err)
	}
	return load()
}

func load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
			BehindProxy:     getEnvAsBool("SERVER_BEHIND_PROXY", false),
		},
		RemoteAPI: RemoteAPIConfig{
			BaseURL:          strings.TrimSuffix(getEnv("API_URL", "http://localhost:4000"), "/"),
			Timeout:          getEnvAsDuration("API_TIMEOUT", 10*time.Second),
			HydrationTimeout: getEnvAsDuration("API_HYDRATION_TIMEOUT", 5*time.Second),
			CAFile:           getEnv("API_CA_FILE", ""),
		},
		Session: SessionConfig{
			Secret:       getEnv("SESSION_SECRET", defaultSessionSecret),
			Issuer:       getEnv("SESSION_ISSUER", "deals-web"),
			TTL:          getEnvAsDuration("SESSION_TTL", 30*24*time.Hour),
			CookieName:   getEnv("SESSION_COOKIE_NAME", "session"),
			CookieSecure: getEnvAsBool("SESSION_COOKIE_SECURE", false),
			Leeway:       getEnvAsDuration("SESSION_LEEWAY", 30*time.Second),
		},
		DealLinks: DealLinksConfig{
			Secret: getEnv("SECRET_KEY", defaultDealLinkSecret),
		},
		Locales: LocalesConfig{
			Default:   getEnv("DEFAULT_LOCALE", "en"),
			Supported: getEnvAsList("SUPPORTED_LOCALES", []string{"en", "jp"}),
		},
		RateLimit: RateLimitConfig{
			LoginPerSecond: getEnvAsFloat("LOGIN_RATE_PER_SECOND", 1),
			LoginBurst:     getEnvAsInt("LOGIN_RATE_BURST", 5),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	u, err := url.Parse(c.RemoteAPI.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_URL must be an absolute URL, got %q", c.RemoteAPI.BaseURL)
	}
	if c.RemoteAPI.Timeout <= 0 || c.RemoteAPI.HydrationTimeout <= 0 {
		return fmt.Errorf("remote API timeouts must be positive")
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session secret is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}

	if c.IsProduction() {
		if c.Session.Secret == defaultSessionSecret || len(c.Session.Secret) < 32 {
			return fmt.Errorf("SESSION_SECRET must be set to at least 32 characters in production")
		}
		if c.DealLinks.Secret == defaultDealLinkSecret {
			return fmt.Errorf("SECRET_KEY must be set in production")
		}
		if u.Scheme != "https" {
			return fmt.Errorf("API_URL must use https in production")
		}
	}

	if len(c.Locales.Supported) == 0 {
		return fmt.Errorf("at least one supported locale is required")
	}
	if !c.Locales.IsSupported(c.Locales.Default) {
		return fmt.Errorf("default locale %q is not in supported locales %v", c.Locales.Default, c.Locales.Supported)
	}

	if c.RateLimit.LoginPerSecond <= 0 || c.RateLimit.LoginBurst <= 0 {
		return fmt.Errorf("login rate limit must be positive")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsSupported reports whether lng is one of the served locales
func (l LocalesConfig) IsSupported(lng string) bool {
	for _, s := range l.Supported {
		if s == lng {
			return true
		}
	}
	return false
}

// Resolve returns lng when it is served, Default when lng is empty, and
// false for any other value.
func (l LocalesConfig) Resolve(lng string) (string, bool) {
	if lng == "" {
		return l.Default, true
	}
	if l.IsSupported(lng) {
		return lng, true
	}
	return "", false
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 3000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 3000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
