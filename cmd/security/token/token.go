package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the token HMAC secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "SESSIOND_TOKEN_HMAC_KEY"

	// MinHMACKeyBytes is the minimum accepted key size under the enforced policy.
	MinHMACKeyBytes = 32
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	return hex.EncodeToString(SignHMACSHA256([]byte(s), key))
}

// SignHMACSHA256 returns the raw HMAC-SHA256 of msg under key.
func SignHMACSHA256(msg, key []byte) []byte {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write(msg)
	return m.Sum(nil)
}

// DeriveKey derives a purpose-bound subkey so one configured secret can serve
// several roles (lookup hashing, claim signing) without reusing the raw key.
func DeriveKey(key []byte, label string) []byte {
	return SignHMACSHA256([]byte(label), key)
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// HMACEnabled reports whether the env key is present (non-empty after trim).
// Note: This does not enforce minimum length. Use HMACKeyFromEnv for policy checks.
func HMACEnabled() bool {
	return strings.TrimSpace(os.Getenv(HMACEnvKey)) != ""
}

// RandomKey returns n cryptographically random bytes.
func RandomKey(n int) ([]byte, error) {
	if n <= 0 {
		n = MinHMACKeyBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// NewOpaque returns a URL-safe (base64url, unpadded) random string of nBytes entropy.
func NewOpaque(nBytes int) (string, error) {
	b, err := RandomKey(nBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hasher turns bearer tokens into stable 64-char hex lookup keys.
//
// With a key it is HMAC-SHA256 (a leaked session table cannot be replayed);
// without one it falls back to plain SHA-256 for development.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher bound to key. A nil or empty key selects SHA-256 mode.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	return Hasher{key: DeriveKey(key, "sessiond.lookup.v1")}
}

// Keyed reports whether the hasher runs in HMAC mode.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// HashHex returns the lookup digest of s.
func (h Hasher) HashHex(s string) string {
	if !h.Keyed() {
		return HashSHA256Hex(s)
	}
	return HashHMACSHA256Hex(s, h.key)
}
