// Package config loads the issuer server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends accepted by BADGE_STORE.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultAddr            = ":8080"
	DefaultIssuer          = "anchorbadge"
	DefaultValidity        = 30 * 24 * time.Hour
	DefaultStoreTimeout    = 5 * time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 15 * time.Second
	DefaultAuditBuffer     = 1024
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Server captures everything `anchorbadge serve` needs.
type Server struct {
	Addr     string
	Issuer   string
	Validity time.Duration

	// SigningKey is base64 seed or private key bytes; SigningKeyFile a private JWK.
	SigningKey     string
	SigningKeyFile string

	Store        string
	DatabaseURL  string
	RedisURL     string
	StoreTimeout time.Duration
	Migrate      bool

	AuditBuffer int
	AdminToken  string
	LogLevel    string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Malformed durations and integers are reported rather than silently defaulted.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:            getenv("BADGE_ADDR", DefaultAddr),
		Issuer:          getenv("BADGE_ISSUER", DefaultIssuer),
		SigningKey:      os.Getenv("BADGE_SIGNING_KEY"),
		SigningKeyFile:  os.Getenv("BADGE_SIGNING_KEY_FILE"),
		Store:           getenv("BADGE_STORE", StoreMemory),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		AdminToken:      os.Getenv("BADGE_ADMIN_TOKEN"),
		LogLevel:        getenv("BADGE_LOG_LEVEL", "info"),
		Validity:        DefaultValidity,
		StoreTimeout:    DefaultStoreTimeout,
		RequestTimeout:  DefaultRequestTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		AuditBuffer:     DefaultAuditBuffer,
	}

	var errs []error
	parseDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}
	parseDuration("BADGE_VALIDITY", &cfg.Validity)
	parseDuration("BADGE_STORE_TIMEOUT", &cfg.StoreTimeout)
	parseDuration("BADGE_REQUEST_TIMEOUT", &cfg.RequestTimeout)
	parseDuration("BADGE_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if v := os.Getenv("BADGE_AUDIT_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BADGE_AUDIT_BUFFER: %w", err))
		} else {
			cfg.AuditBuffer = n
		}
	}
	if v := os.Getenv("BADGE_DB_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BADGE_DB_MIGRATE: %w", err))
		} else {
			cfg.Migrate = b
		}
	}

	if len(errs) > 0 {
		return Server{}, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return cfg, nil
}

// Validate checks cross-field constraints. It runs after flags have been applied.
func (c Server) Validate() error {
	var errs []error
	if c.Validity < time.Second {
		errs = append(errs, fmt.Errorf("validity must be at least 1s, got %s", c.Validity))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store timeout must be positive"))
	}
	if c.AuditBuffer < 0 {
		errs = append(errs, errors.New("audit buffer must not be negative"))
	}
	switch c.Store {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	case StoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q (want memory, postgres or redis)", c.Store))
	}
	if c.SigningKey != "" && c.SigningKeyFile != "" {
		errs = append(errs, errors.New("set only one of BADGE_SIGNING_KEY and BADGE_SIGNING_KEY_FILE"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func getenv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
