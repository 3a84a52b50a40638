package identity

import (
	"context"
	"time"
)

// Account is the persisted credential record for an identity.
// PasswordHash is empty for accounts created while passwords are not verified.
type Account struct {
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the principal derived from the account email.
func (a Account) Identity() Identity { return FromEmail(a.Email) }

// Role is a membership role inside an organization.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Organization is a tenant grouping identities.
type Organization struct {
	ID        string
	Name      string
	OwnerID   string
	CreatedAt time.Time
}

// CreateAccountInput describes a new account. Email is normalised by the store.
type CreateAccountInput struct {
	Email        string
	PasswordHash string
	Now          time.Time
}

// CreateOrganizationInput describes a new organization; the owner becomes its first member.
type CreateOrganizationInput struct {
	Name    string
	OwnerID string
	Now     time.Time
}

// Store is the persistence boundary for accounts and organizations.
type Store interface {
	// CreateAccount inserts an account. Returns ConflictError{Field:"email"} if it exists.
	CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error)

	// GetAccount loads an account by (normalised) email. Returns ErrNotFound when missing.
	GetAccount(ctx context.Context, email string) (Account, error)

	// SetPasswordHash replaces the stored hash (rehash on login, first password).
	SetPasswordHash(ctx context.Context, email, hash string, now time.Time) error

	// CreateOrganization creates an organization and the owner membership atomically.
	CreateOrganization(ctx context.Context, in CreateOrganizationInput) (Organization, error)

	// PrimaryOrganization returns the earliest organization the user belongs to.
	// Returns ErrNotFound when the user has none.
	PrimaryOrganization(ctx context.Context, userID string) (Organization, error)
}
