package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"sessiond/cmd/identity/ids"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	orgs     map[string]Organization
	members  map[string]map[string]Role // userID -> orgID -> role
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		orgs:     make(map[string]Organization),
		members:  make(map[string]map[string]Role),
	}
}

var _ Store = (*MemoryStore)(nil)

// CreateAccount implements Store.
func (s *MemoryStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}

	email := NormalizeEmail(in.Email)
	if email == "" {
		return Account{}, invalid(op, "email is required")
	}
	now := nowOr(in.Now)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[email]; ok {
		return Account{}, ConflictError{Op: op, Field: "email"}
	}
	acct := Account{Email: email, PasswordHash: in.PasswordHash, CreatedAt: now, UpdatedAt: now}
	s.accounts[email] = acct
	return acct, nil
}

// GetAccount implements Store.
func (s *MemoryStore) GetAccount(ctx context.Context, email string) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[NormalizeEmail(email)]
	if !ok {
		return Account{}, notFound("identity.GetAccount", "account")
	}
	return acct, nil
}

// SetPasswordHash implements Store.
func (s *MemoryStore) SetPasswordHash(ctx context.Context, email, hash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := NormalizeEmail(email)
	acct, ok := s.accounts[key]
	if !ok {
		return notFound("identity.SetPasswordHash", "account")
	}
	acct.PasswordHash = hash
	acct.UpdatedAt = nowOr(now)
	s.accounts[key] = acct
	return nil
}

// CreateOrganization implements Store.
func (s *MemoryStore) CreateOrganization(ctx context.Context, in CreateOrganizationInput) (Organization, error) {
	const op = "identity.CreateOrganization"
	if err := ctx.Err(); err != nil {
		return Organization{}, err
	}

	name := NormalizeOrgName(in.Name)
	owner := NormalizeEmail(in.OwnerID)
	if name == "" || owner == "" {
		return Organization{}, invalid(op, "name and owner are required")
	}
	now := nowOr(in.Now)
	id, err := ids.NewULID(now)
	if err != nil {
		return Organization{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orgs {
		if o.OwnerID == owner && strings.EqualFold(o.Name, name) {
			return Organization{}, ConflictError{Op: op, Field: "organization"}
		}
	}

	org := Organization{ID: id, Name: name, OwnerID: owner, CreatedAt: now}
	s.orgs[id] = org
	if s.members[owner] == nil {
		s.members[owner] = make(map[string]Role)
	}
	s.members[owner][id] = RoleOwner
	return org, nil
}

// PrimaryOrganization implements Store.
func (s *MemoryStore) PrimaryOrganization(ctx context.Context, userID string) (Organization, error) {
	if err := ctx.Err(); err != nil {
		return Organization{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var orgs []Organization
	for orgID := range s.members[NormalizeEmail(userID)] {
		orgs = append(orgs, s.orgs[orgID])
	}
	if len(orgs) == 0 {
		return Organization{}, notFound("identity.PrimaryOrganization", "organization")
	}
	// ULIDs sort by creation time.
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].ID < orgs[j].ID })
	return orgs[0], nil
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
