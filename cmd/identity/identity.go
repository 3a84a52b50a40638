package identity

import "strings"

// Identity is the authenticated principal recovered from a session.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// FromEmail derives an Identity from an email address as presented.
// Only surrounding whitespace is removed; case is kept. Name is the local part.
func FromEmail(email string) Identity {
	e := strings.TrimSpace(email)
	return Identity{
		ID:    e,
		Email: e,
		Name:  LocalPart(e),
	}
}

// AccountKey is the case-insensitive key accounts, organizations and
// per-user session indexes are stored under.
func (i Identity) AccountKey() string { return NormalizeEmail(i.Email) }

// LocalPart returns the substring before the first '@', or s itself when there is none.
func LocalPart(s string) string {
	local, _, _ := strings.Cut(s, "@")
	return local
}

// IsZero reports whether the identity carries no email.
func (i Identity) IsZero() bool { return i.Email == "" }
