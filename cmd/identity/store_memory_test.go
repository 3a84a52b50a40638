package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"sessiond/cmd/identity/ids"
)

func TestMemoryStore_AccountLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	acct, err := s.CreateAccount(ctx, CreateAccountInput{Email: " User@Example.com ", Now: now})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acct.Email != "user@example.com" {
		t.Fatalf("email not normalised: %q", acct.Email)
	}
	if acct.Identity().Name != "user" {
		t.Fatalf("identity name: %q", acct.Identity().Name)
	}

	if _, err := s.CreateAccount(ctx, CreateAccountInput{Email: "USER@example.com"}); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	later := now.Add(time.Hour)
	if err := s.SetPasswordHash(ctx, "user@EXAMPLE.com", "$argon2id$fake", later); err != nil {
		t.Fatalf("set hash: %v", err)
	}
	got, err := s.GetAccount(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PasswordHash != "$argon2id$fake" || !got.UpdatedAt.Equal(later) || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected account: %+v", got)
	}

	if _, err := s.GetAccount(ctx, "missing@example.com"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.SetPasswordHash(ctx, "missing@example.com", "h", later); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.CreateAccount(ctx, CreateAccountInput{Email: "  "}); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestMemoryStore_Organizations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.PrimaryOrganization(ctx, "owner@example.com"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	t0 := time.Now().UTC().Add(-time.Minute)
	first, err := s.CreateOrganization(ctx, CreateOrganizationInput{Name: "  Team  One ", OwnerID: "Owner@example.com", Now: t0})
	if err != nil {
		t.Fatalf("create org: %v", err)
	}
	if first.Name != "Team One" || first.OwnerID != "owner@example.com" {
		t.Fatalf("unexpected org: %+v", first)
	}
	if !ids.Valid(first.ID) {
		t.Fatalf("org id is not a ulid: %q", first.ID)
	}

	if _, err := s.CreateOrganization(ctx, CreateOrganizationInput{Name: "team one", OwnerID: "owner@example.com"}); !IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	if _, err := s.CreateOrganization(ctx, CreateOrganizationInput{Name: "Team Two", OwnerID: "owner@example.com", Now: t0.Add(time.Second)}); err != nil {
		t.Fatalf("create second org: %v", err)
	}

	primary, err := s.PrimaryOrganization(ctx, "OWNER@example.com")
	if err != nil {
		t.Fatalf("primary: %v", err)
	}
	if primary.ID != first.ID {
		t.Fatalf("primary = %s, want earliest %s", primary.ID, first.ID)
	}

	if _, err := s.CreateOrganization(ctx, CreateOrganizationInput{Name: " ", OwnerID: "owner@example.com"}); !IsInvalidInput(err) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestMemoryStore_ConcurrentCreateAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateAccount(ctx, CreateAccountInput{Email: "race@example.com"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case IsConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 || conflicts != n-1 {
		t.Fatalf("created=%d conflicts=%d", created, conflicts)
	}
}

func TestMemoryStore_HonoursCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewMemoryStore().GetAccount(ctx, "a@b.com"); err == nil {
		t.Fatal("expected context error")
	}
}
