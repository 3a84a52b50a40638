package session

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Format selects the token codec.
type Format string

const (
	// FormatHMAC is base64url(payload) "." base64url(HMAC-SHA256(payload)).
	FormatHMAC Format = "hmac"
	// FormatPaseto is a PASETO v4.public token.
	FormatPaseto Format = "paseto"
)

// Config defines the runtime configuration for the session subsystem.
type Config struct {
	// Issuer is set as the "iss" claim of PASETO tokens.
	Issuer string

	// TTL is the lifetime granted by Issue and by each Refresh.
	TTL time.Duration

	// NonceBytes is the random entropy embedded in every token.
	NonceBytes int

	// Format selects the token codec.
	Format Format

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key, required for FormatPaseto.
	PasetoV4SecretKeyHex string

	// SweepInterval is the janitor period. Zero disables sweeping.
	SweepInterval time.Duration
}

// DefaultConfig returns the documented defaults: seven-day sessions with HMAC tokens.
func DefaultConfig() Config {
	return Config{
		Issuer:        "sessiond",
		TTL:           7 * 24 * time.Hour,
		NonceBytes:    16,
		Format:        FormatHMAC,
		SweepInterval: 10 * time.Minute,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional:
//   - SESSIOND_AUTH_ISSUER
//   - SESSIOND_SESSION_TTL (Go duration, > 0)
//   - SESSIOND_SESSION_NONCE_BYTES (16..64)
//   - SESSIOND_SESSION_TOKEN_FORMAT (hmac|paseto)
//   - SESSIOND_SESSION_SWEEP_INTERVAL (Go duration, >= 0)
//
// Required when the format is paseto:
//   - SESSIOND_PASETO_V4_SECRET_KEY_HEX
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("SESSIOND_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("SESSIOND_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	if v := os.Getenv("SESSIOND_SESSION_NONCE_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 16 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.NonceBytes = n
	}

	if v := strings.TrimSpace(os.Getenv("SESSIOND_SESSION_TOKEN_FORMAT")); v != "" {
		switch f := Format(strings.ToLower(v)); f {
		case FormatHMAC, FormatPaseto:
			cfg.Format = f
		default:
			return Config{}, ErrConfig
		}
	}

	if v := os.Getenv("SESSIOND_SESSION_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.SweepInterval = d
	}

	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("SESSIOND_PASETO_V4_SECRET_KEY_HEX"))
	if cfg.Format == FormatPaseto && cfg.PasetoV4SecretKeyHex == "" {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
