package password

import "errors"

// Policy and decoding errors. Messages are safe to surface to API clients.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("password too weak")
	ErrInvalidHash      = errors.New("invalid password hash")
)

// IsPolicyViolation reports whether err is one of the policy errors (as opposed to a hashing failure).
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrPasswordTooShort) ||
		errors.Is(err, ErrPasswordTooLong) ||
		errors.Is(err, ErrWeakPassword)
}
