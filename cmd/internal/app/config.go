package app

import (
	"fmt"
	"strings"
	"time"
)

// Session store backends selectable through SESSIOND_SESSION_STORE.
const (
	StoreAuto     = "auto"
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string
	LogColor  bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string
	AutoMigrate bool

	RedisURL       string
	RedisKeyPrefix string

	// SessionStore is one of auto, memory, postgres, redis. auto picks
	// postgres when a database is configured and memory otherwise.
	SessionStore string

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, SESSIOND_TOKEN_HMAC_KEY MUST be set (>= 32 bytes).
	RequireTokenHMAC bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("SESSIOND_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("SESSIOND_LOG_LEVEL", "info"),
		LogFormat: EnvString("SESSIOND_LOG_FORMAT", "json"),
		LogColor:  EnvBool("SESSIOND_LOG_COLOR", true),

		ReadHeaderTimeout: EnvDuration("SESSIOND_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("SESSIOND_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("SESSIOND_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("SESSIOND_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("SESSIOND_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("SESSIOND_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("SESSIOND_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("SESSIOND_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("SESSIOND_DB_MIN_CONNS", 0),
		DBSchema:    EnvString("SESSIOND_DB_SCHEMA", "sessiond"),
		AutoMigrate: EnvBool("SESSIOND_AUTO_MIGRATE", false),

		RedisURL:       EnvString("SESSIOND_REDIS_URL", ""),
		RedisKeyPrefix: EnvString("SESSIOND_REDIS_KEY_PREFIX", "sessiond:"),

		SessionStore: strings.ToLower(EnvString("SESSIOND_SESSION_STORE", StoreAuto)),

		ReadinessRequireDB: EnvBool("SESSIOND_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("SESSIOND_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins:   EnvList("SESSIOND_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("SESSIOND_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("SESSIOND_CORS_MAX_AGE_SECONDS", 600),
	}
}

// sessionBackend resolves StoreAuto and checks that the chosen backend has
// what it needs.
func (c Config) sessionBackend() (string, error) {
	switch c.SessionStore {
	case "", StoreAuto:
		if c.DatabaseURL != "" {
			return StorePostgres, nil
		}
		return StoreMemory, nil
	case StoreMemory:
		return StoreMemory, nil
	case StorePostgres:
		if c.DatabaseURL == "" {
			return "", fmt.Errorf("config: SESSIOND_SESSION_STORE=postgres requires SESSIOND_DATABASE_URL")
		}
		return StorePostgres, nil
	case StoreRedis:
		if c.RedisURL == "" {
			return "", fmt.Errorf("config: SESSIOND_SESSION_STORE=redis requires SESSIOND_REDIS_URL")
		}
		return StoreRedis, nil
	default:
		return "", fmt.Errorf("config: unknown SESSIOND_SESSION_STORE %q", c.SessionStore)
	}
}
