package app

import (
	"errors"
	"fmt"

	"sessiond/cmd/security/token"
)

// ValidateSecurityConfig fails startup when SESSIOND_REQUIRE_TOKEN_HMAC is set
// and the signing key is missing or shorter than token.MinHMACKeyBytes.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	if _, err := token.HMACKeyFromEnv(token.MinHMACKeyBytes); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return fmt.Errorf("security policy: SESSIOND_REQUIRE_TOKEN_HMAC=true but %s is missing", token.HMACEnvKey)
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return fmt.Errorf("security policy: SESSIOND_REQUIRE_TOKEN_HMAC=true but %s is too short (min %d bytes)",
				token.HMACEnvKey, token.MinHMACKeyBytes)
		default:
			return err
		}
	}

	if !token.HMACEnabled() {
		return errors.New("security policy: SESSIOND_REQUIRE_TOKEN_HMAC=true but the token key is not active")
	}
	return nil
}

// signingKey returns the configured HMAC key, or a random per-process key
// when none is set. Tokens signed with an ephemeral key die with the process.
func signingKey(log Logger) ([]byte, error) {
	key, err := token.HMACKeyFromEnv(token.MinHMACKeyBytes)
	switch {
	case err == nil:
		return key, nil
	case errors.Is(err, token.ErrHMACKeyMissing):
		key, err = token.RandomKey(token.MinHMACKeyBytes)
		if err != nil {
			return nil, err
		}
		log.Warn("security.token_key.ephemeral", "env", token.HMACEnvKey)
		return key, nil
	default:
		return nil, fmt.Errorf("%s: %w", token.HMACEnvKey, err)
	}
}
