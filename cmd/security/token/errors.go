package token

import "errors"

// Key configuration errors. Stable for errors.Is at startup policy checks.
var (
	ErrHMACKeyMissing  = errors.New("token: HMAC key missing")
	ErrHMACKeyTooShort = errors.New("token: HMAC key too short")
)
