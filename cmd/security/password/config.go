package password

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// RejectVeryWeak enables a minimal blocklist / pattern check.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns the baseline used for account passwords.
func DefaultConfig() Config {
	// Parallelism follows the host but is clamped to [1..4] for container predictability.
	threads := min(max(runtime.NumCPU(), 1), 4)

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      256,
			RejectVeryWeak: true,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
//   - SESSIOND_PASSWORD_MIN_LEN, SESSIOND_PASSWORD_MAX_LEN
//   - SESSIOND_PASSWORD_REJECT_VERY_WEAK (true/false)
//   - SESSIOND_ARGON2_MEMORY_KIB, SESSIOND_ARGON2_ITERATIONS, SESSIOND_ARGON2_PARALLELISM
//   - SESSIOND_ARGON2_SALT_LEN, SESSIOND_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		key      string
		min, max uint64
		set      func(uint64)
	}{
		{"SESSIOND_PASSWORD_MIN_LEN", 1, 1024, func(v uint64) { cfg.Policy.MinLength = int(v) }},
		{"SESSIOND_PASSWORD_MAX_LEN", 1, 4096, func(v uint64) { cfg.Policy.MaxLength = int(v) }},
		{"SESSIOND_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(v uint64) { cfg.Params.MemoryKiB = uint32(v) }},
		{"SESSIOND_ARGON2_ITERATIONS", 1, 20, func(v uint64) { cfg.Params.Iterations = uint32(v) }},
		{"SESSIOND_ARGON2_PARALLELISM", 1, 64, func(v uint64) { cfg.Params.Parallelism = uint8(v) }},
		{"SESSIOND_ARGON2_SALT_LEN", 8, 64, func(v uint64) { cfg.Params.SaltLength = uint32(v) }},
		{"SESSIOND_ARGON2_KEY_LEN", 16, 64, func(v uint64) { cfg.Params.KeyLength = uint32(v) }},
	}
	for _, it := range ints {
		raw, ok := os.LookupEnv(it.key)
		if !ok {
			continue
		}
		v, err := parseRange(raw, it.min, it.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", it.key, err)
		}
		it.set(v)
	}

	if raw, ok := os.LookupEnv("SESSIOND_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("SESSIOND_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}

	return cfg, nil
}

func parseRange(s string, minVal, maxVal uint64) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	if v < minVal || v > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return v, nil
}
