package authapi

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"sessiond/cmd/internal/auth/cookie"

	"golang.org/x/time/rate"
)

// PasswordMode selects how login and register treat the submitted password.
type PasswordMode string

const (
	// PasswordAccept only requires a non-empty password.
	PasswordAccept PasswordMode = "accept"
	// PasswordVerify checks the Argon2id hash stored on the account.
	PasswordVerify PasswordMode = "verify"
)

// ErrConfig is returned for invalid auth API environment values.
var ErrConfig = errors.New("authapi: invalid config")

// Config controls auth API behavior and security defaults.
type Config struct {
	PasswordMode PasswordMode
	TrustProxy   bool
	MaxBodyBytes int64

	// LoginRate is the sustained number of login/register attempts per
	// minute and client IP; LoginBurst is the bucket size. Zero disables throttling.
	LoginRate  int
	LoginBurst int
	// LimiterIdle evicts per-IP buckets that saw no traffic for this long.
	LimiterIdle time.Duration

	CookieDomain        string
	CookieSecureDefault bool
}

// DefaultConfig returns the defaults used when no environment is set.
func DefaultConfig() Config {
	return Config{
		PasswordMode:        PasswordAccept,
		MaxBodyBytes:        1 << 20, // 1 MiB
		LoginRate:           10,
		LoginBurst:          20,
		LimiterIdle:         10 * time.Minute,
		CookieSecureDefault: true,
	}
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
// An unknown password mode is rejected rather than silently downgraded.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("SESSIOND_AUTH_PASSWORD_MODE")); v != "" {
		switch PasswordMode(strings.ToLower(v)) {
		case PasswordAccept:
			cfg.PasswordMode = PasswordAccept
		case PasswordVerify:
			cfg.PasswordMode = PasswordVerify
		default:
			return Config{}, fmt.Errorf("%w: SESSIOND_AUTH_PASSWORD_MODE=%q", ErrConfig, v)
		}
	}

	cfg.TrustProxy = envBool("SESSIOND_AUTH_TRUST_PROXY", cfg.TrustProxy)
	cfg.MaxBodyBytes = envInt64("SESSIOND_AUTH_MAX_BODY_BYTES", cfg.MaxBodyBytes)
	cfg.LoginRate = envNonNegInt("SESSIOND_AUTH_LOGIN_RATE", cfg.LoginRate)
	cfg.LoginBurst = envNonNegInt("SESSIOND_AUTH_LOGIN_BURST", cfg.LoginBurst)
	cfg.LimiterIdle = envDuration("SESSIOND_AUTH_LIMITER_IDLE", cfg.LimiterIdle)
	cfg.CookieDomain = strings.TrimSpace(os.Getenv("SESSIOND_COOKIE_DOMAIN"))
	cfg.CookieSecureDefault = envBool("SESSIOND_COOKIE_SECURE_DEFAULT", cfg.CookieSecureDefault)

	if cfg.LoginRate > 0 && cfg.LoginBurst == 0 {
		cfg.LoginBurst = 1
	}
	return cfg, nil
}

// CookiePolicy returns the session cookie policy with the configured domain and Secure default.
func (c Config) CookiePolicy() cookie.Policy {
	p := cookie.DefaultPolicy()
	p.Domain = c.CookieDomain
	p.SecureDefault = c.CookieSecureDefault
	return p
}

// loginLimit converts the per-minute rate to a token bucket refill rate.
func (c Config) loginLimit() rate.Limit {
	if c.LoginRate <= 0 {
		return 0
	}
	return rate.Limit(float64(c.LoginRate) / 60)
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envNonNegInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
