package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates runtime configuration for the InkLedger API.
type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Identity IdentityConfig
	Ledger   LedgerConfig
	AppKeys  AppKeyConfig
	Metrics  MetricsConfig
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// IdentityConfig groups identity-resolution settings.
type IdentityConfig struct {
	// BearerSecret verifies HS256 bearer credentials issued by the SSO hub.
	BearerSecret string
	// BearerIssuer is the expected issuer claim; empty disables the check.
	BearerIssuer string
	// SessionSecret signs session continuation tokens.
	SessionSecret string
	// SessionTTL bounds how long a continuation token stays valid.
	SessionTTL time.Duration
}

// LedgerConfig groups credit and storage accounting settings.
type LedgerConfig struct {
	// SignupBonus is the credit grant logged on first resolution of a new account.
	SignupBonus int64
	// DefaultStorageLimitBytes is the per-account workspace quota for new accounts.
	DefaultStorageLimitBytes int64
	// CacheTTL bounds how long an account snapshot may be served from cache.
	CacheTTL time.Duration
	// RetryAttempts caps internal retries of transient store failures.
	RetryAttempts int
	// RetryBackoff is the initial backoff between retries.
	RetryBackoff time.Duration
}

// AppKeyConfig maps calling application names to bcrypt hashes of their API keys.
type AppKeyConfig struct {
	// Keys holds app -> bcrypt(key) pairs parsed from INKLEDGER_APP_KEYS
	// ("penora:$2a$...,imagegene:$2a$...").
	Keys map[string]string
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// Load reads configuration values from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:         getString("INKLEDGER_API_HOST", "0.0.0.0"),
			Port:         getInt("INKLEDGER_API_PORT", 8080),
			ReadTimeout:  getDuration("INKLEDGER_API_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDuration("INKLEDGER_API_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDuration("INKLEDGER_API_IDLE_TIMEOUT", 60*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     getString("POSTGRES_HOST", "localhost"),
			Port:     getInt("POSTGRES_PORT", 5432),
			User:     getString("POSTGRES_USER", "inkledger_app"),
			Password: getString("POSTGRES_PASSWORD", "change-me"),
			Database: getString("POSTGRES_DB", "inkledger"),
			SSLMode:  strings.ToLower(getString("POSTGRES_SSL_MODE", "disable")),
		},
		Identity: IdentityConfig{
			BearerSecret:  getString("INKLEDGER_BEARER_SECRET", "change-me-to-a-32-byte-secret"),
			BearerIssuer:  getString("INKLEDGER_BEARER_ISSUER", ""),
			SessionSecret: getString("INKLEDGER_SESSION_SECRET", "change-me-to-a-64-byte-secret"),
			SessionTTL:    getDuration("INKLEDGER_SESSION_TTL", 24*time.Hour),
		},
		Ledger: loadLedgerConfig(),
		AppKeys: AppKeyConfig{
			Keys: parseAppKeys(getString("INKLEDGER_APP_KEYS", "")),
		},
		Metrics: MetricsConfig{
			PrometheusPath: getString("INKLEDGER_METRICS_PATH", "/metrics"),
		},
	}

	return cfg, nil
}

func loadLedgerConfig() LedgerConfig {
	bonus := getInt64("INKLEDGER_SIGNUP_BONUS", 50)
	if bonus < 0 {
		bonus = 0
	}

	limit := getInt64("INKLEDGER_DEFAULT_STORAGE_LIMIT", 1048576)
	if limit < 0 {
		limit = 0
	}

	attempts := getInt("INKLEDGER_RETRY_ATTEMPTS", 3)
	if attempts < 1 {
		attempts = 1
	}

	return LedgerConfig{
		SignupBonus:              bonus,
		DefaultStorageLimitBytes: limit,
		CacheTTL:                 getDuration("INKLEDGER_CACHE_TTL", 30*time.Second),
		RetryAttempts:            attempts,
		RetryBackoff:             getDuration("INKLEDGER_RETRY_BACKOFF", 100*time.Millisecond),
	}
}

// parseAppKeys parses "app:hash" pairs separated by commas. A bcrypt hash
// contains no commas, so the first colon splits name from hash.
func parseAppKeys(raw string) map[string]string {
	keys := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, ":")
		if idx <= 0 || idx == len(pair)-1 {
			continue
		}
		keys[pair[:idx]] = pair[idx+1:]
	}
	return keys
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}
