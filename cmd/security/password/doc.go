// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes use the PHC string format. Encoded hashes are untrusted input during
// Verify: malformed strings and cost parameters far above the configured ones are
// rejected with ErrInvalidHash. NeedsRehash lets callers upgrade stored hashes
// after a successful login.
package password
