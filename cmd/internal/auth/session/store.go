package session

import (
	"context"
	"net"
	"time"
)

// DeviceContext describes the client that owns a session.
type DeviceContext struct {
	UserAgent string
	IP        net.IP
}

// Record is the server-side state behind a token.
// TokenHash is the lookup key; the plain token is never stored.
type Record struct {
	ID         string     `json:"id"`
	TokenHash  string     `json:"token_hash"`
	UserID     string     `json:"user_id"`
	Email      string     `json:"email"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	UserAgent  string     `json:"user_agent,omitempty"`
	IP         net.IP     `json:"ip,omitempty"`
}

// ActiveAt reports whether the record is still valid at now.
func (r Record) ActiveAt(now time.Time) bool { return r.ExpiresAt.After(now) }

// nextExpiry is the expiry a refresh grants: requested, or one millisecond past
// the current expiry when requested would not move it forward.
func nextExpiry(current, requested time.Time) time.Time {
	if requested.After(current) {
		return requested
	}
	return current.Add(time.Millisecond)
}

// Store abstracts persistence for session records.
type Store interface {
	// Create inserts a new record. TokenHash must be unique.
	Create(ctx context.Context, rec Record) error

	// GetByTokenHash loads a record. Returns ErrSessionNotFound when missing.
	// Expired records may still be returned; callers check ActiveAt.
	GetByTokenHash(ctx context.Context, tokenHash string) (Record, error)

	// Extend atomically moves the expiry of a record that is active at now to
	// the later of expiresAt and the current expiry plus one millisecond, and
	// stamps last_used_at. Returns ErrSessionNotFound or ErrSessionExpired.
	Extend(ctx context.Context, tokenHash string, now, expiresAt time.Time) (Record, error)

	// Touch updates last_used_at (best-effort; missing records are not an error).
	Touch(ctx context.Context, tokenHash string, now time.Time) error

	// Delete removes a record (idempotent).
	Delete(ctx context.Context, tokenHash string) error

	// DeleteByUser removes every record of a user and returns how many were removed.
	DeleteByUser(ctx context.Context, userID string) (int, error)

	// DeleteExpired removes records expired at now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// Ping checks backend reachability.
	Ping(ctx context.Context) error
}
