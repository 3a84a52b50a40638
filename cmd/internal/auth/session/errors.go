package session

import "errors"

var (
	// ErrInvalidToken is returned when a token cannot be decoded or fails signature verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionNotFound is returned when no record backs a token.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired is returned when the backing record has expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrInvalidIdentity is returned when a session is requested for a blank email.
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// IsUnauthorized reports whether err means the presented token must be rejected
// (as opposed to an infrastructure failure).
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionExpired)
}
