package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestHasher_Modes(t *testing.T) {
	t.Parallel()

	plain := NewHasher(nil)
	if plain.Keyed() {
		t.Fatalf("expected unkeyed hasher")
	}
	if got, want := plain.HashHex("abc"), HashSHA256Hex("abc"); got != want {
		t.Fatalf("sha mode mismatch: %s vs %s", got, want)
	}

	keyed := NewHasher([]byte(strings.Repeat("k", 32)))
	if !keyed.Keyed() {
		t.Fatalf("expected keyed hasher")
	}
	a := keyed.HashHex("abc")
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == plain.HashHex("abc") {
		t.Fatalf("keyed digest must differ from sha digest")
	}
	if a != keyed.HashHex("abc") {
		t.Fatalf("digest must be stable")
	}

	other := NewHasher([]byte(strings.Repeat("z", 32)))
	if other.HashHex("abc") == a {
		t.Fatalf("different keys must yield different digests")
	}
}

func TestDeriveKey_PurposeSeparation(t *testing.T) {
	t.Parallel()

	key := []byte(strings.Repeat("s", 32))
	a := DeriveKey(key, "one")
	b := DeriveKey(key, "two")
	if string(a) == string(b) {
		t.Fatalf("labels must separate derived keys")
	}
	if len(a) != 32 {
		t.Fatalf("derived key length=%d", len(a))
	}
}

func TestHMACKeyFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := HMACKeyFromEnv(32); !errors.Is(err, ErrHMACKeyMissing) {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}
	if HMACEnabled() {
		t.Fatalf("expected HMAC disabled")
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := HMACKeyFromEnv(32); !errors.Is(err, ErrHMACKeyTooShort) {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}

	t.Setenv(HMACEnvKey, "  "+strings.Repeat("x", 40)+"  ")
	key, err := HMACKeyFromEnv(32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 40 {
		t.Fatalf("expected trimmed key of 40 bytes, got %d", len(key))
	}
	if !HMACEnabled() {
		t.Fatalf("expected HMAC enabled")
	}
}

func TestNewOpaque(t *testing.T) {
	t.Parallel()

	a, err := NewOpaque(32)
	if err != nil {
		t.Fatalf("NewOpaque: %v", err)
	}
	b, err := NewOpaque(32)
	if err != nil {
		t.Fatalf("NewOpaque: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct values")
	}
	raw, err := base64.RawURLEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("expected base64url: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("expected 32 bytes of entropy, got %d", len(raw))
	}
}
