package session

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"sessiond/cmd/identity"
	"sessiond/cmd/security/token"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type serviceFixture struct {
	svc   *Service
	store *MemoryStore
	clock *fakeClock
}

func newServiceFixture(t *testing.T, opts ...Option) serviceFixture {
	t.Helper()

	cfg := DefaultConfig()
	store := NewMemoryStore()
	clock := newFakeClock()
	codec := mustHMACCodec(t, testKey)

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	svc, err := NewService(cfg, store, codec, token.NewHasher(testKey), opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return serviceFixture{svc: svc, store: store, clock: clock}
}

func TestService_IssueThenValidate(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Issue(ctx, "a@b.com", DeviceContext{UserAgent: "ua/1", IP: net.ParseIP("198.51.100.1")})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if issued.Identity.Email != "a@b.com" || issued.Identity.Name != "a" || issued.Identity.ID != "a@b.com" {
		t.Fatalf("unexpected identity: %+v", issued.Identity)
	}
	if want := f.clock.Now().Add(7 * 24 * time.Hour); !issued.ExpiresAt.Equal(want) {
		t.Fatalf("expires = %v, want %v", issued.ExpiresAt, want)
	}

	got, err := f.svc.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.Identity != issued.Identity || got.ID != issued.ID {
		t.Fatalf("validate mismatch: %+v vs %+v", got, issued)
	}

	rec, err := f.store.GetByTokenHash(ctx, token.NewHasher(testKey).HashHex(issued.Token))
	if err != nil {
		t.Fatalf("record lookup: %v", err)
	}
	if rec.LastUsedAt == nil {
		t.Fatal("validate did not touch last_used_at")
	}
	if rec.UserAgent != "ua/1" || !rec.IP.Equal(net.ParseIP("198.51.100.1")) {
		t.Fatalf("device not recorded: %+v", rec)
	}
	if strings.Contains(rec.TokenHash, issued.Token) || len(rec.TokenHash) != 64 {
		t.Fatalf("token hash looks wrong: %q", rec.TokenHash)
	}
}

func TestService_IssueRecoversEmailForManyInputs(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	for _, email := range []string{"a@b.com", "x", "first.last+tag@sub.example.org", "colon:in@local.part"} {
		issued, err := f.svc.Issue(ctx, email, DeviceContext{})
		if err != nil {
			t.Fatalf("Issue(%q): %v", email, err)
		}
		got, err := f.svc.Validate(ctx, issued.Token)
		if err != nil {
			t.Fatalf("Validate(%q): %v", email, err)
		}
		if got.Identity.Email != email {
			t.Fatalf("email = %q, want %q", got.Identity.Email, email)
		}
	}
}

func TestService_IssueKeepsPresentedEmail(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	issued, err := f.svc.Issue(ctx, "  Alice@Example.COM ", DeviceContext{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	want := identity.Identity{ID: "Alice@Example.COM", Email: "Alice@Example.COM", Name: "Alice"}
	if issued.Identity != want {
		t.Fatalf("issued identity = %+v, want %+v", issued.Identity, want)
	}

	got, err := f.svc.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.Identity != want {
		t.Fatalf("validated identity = %+v, want %+v", got.Identity, want)
	}
}

func TestService_IssueYieldsDistinctTokens(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for range 20 {
		issued, err := f.svc.Issue(ctx, "a@b.com", DeviceContext{})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if seen[issued.Token] {
			t.Fatal("duplicate token issued")
		}
		seen[issued.Token] = true
	}
	if f.store.Len() != 20 {
		t.Fatalf("store has %d records, want 20", f.store.Len())
	}
}

func TestService_IssueRejectsBlankEmail(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	if _, err := f.svc.Issue(context.Background(), "   ", DeviceContext{}); !errors.Is(err, ErrInvalidIdentity) {
		t.Fatalf("expected ErrInvalidIdentity, got %v", err)
	}
}

func TestService_ValidateFailsClosed(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	unsigned := base64.RawURLEncoding.EncodeToString([]byte("a@b.com:1700000000000:n")) + ".c2ln"
	cases := map[string]struct {
		raw  string
		want error
	}{
		"empty":          {"", ErrInvalidToken},
		"whitespace":     {"   ", ErrInvalidToken},
		"garbage":        {"not-a-token", ErrInvalidToken},
		"unsigned claim": {unsigned, ErrInvalidToken},
	}
	for name, tc := range cases {
		if _, err := f.svc.Validate(ctx, tc.raw); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
	}

	// A validly signed token with no backing record is rejected.
	codec := mustHMACCodec(t, testKey)
	orphan, err := codec.Encode(Claims{Email: "a@b.com", IssuedAt: f.clock.Now(), Nonce: "orphan"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := f.svc.Validate(ctx, orphan); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("orphan: expected ErrSessionNotFound, got %v", err)
	}
	if !IsUnauthorized(ErrSessionNotFound) || IsUnauthorized(errors.New("db down")) {
		t.Fatal("IsUnauthorized classification is wrong")
	}
}

func TestService_ValidateExpiredDeletesRecord(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Issue(ctx, "a@b.com", DeviceContext{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	f.clock.Advance(7*24*time.Hour - time.Millisecond)
	if _, err := f.svc.Validate(ctx, issued.Token); err != nil {
		t.Fatalf("Validate just before expiry: %v", err)
	}

	f.clock.Advance(time.Millisecond)
	if _, err := f.svc.Validate(ctx, issued.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if f.store.Len() != 0 {
		t.Fatalf("expired record not deleted, store has %d", f.store.Len())
	}
	if _, err := f.svc.Validate(ctx, issued.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after lazy delete, got %v", err)
	}
}

func TestService_RefreshKeepsTokenAndExtends(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Issue(ctx, "a@b.com", DeviceContext{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	f.clock.Advance(time.Hour)
	refreshed, err := f.svc.Refresh(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.Token != issued.Token {
		t.Fatal("refresh changed the token value")
	}
	if want := f.clock.Now().Add(7 * 24 * time.Hour); !refreshed.ExpiresAt.Equal(want) {
		t.Fatalf("expires = %v, want %v", refreshed.ExpiresAt, want)
	}
	if !refreshed.ExpiresAt.After(issued.ExpiresAt) {
		t.Fatal("refresh did not increase expiry")
	}

	// Same instant: expiry still strictly increases.
	again, err := f.svc.Refresh(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Refresh again: %v", err)
	}
	if !again.ExpiresAt.After(refreshed.ExpiresAt) {
		t.Fatalf("expiry did not strictly increase: %v -> %v", refreshed.ExpiresAt, again.ExpiresAt)
	}
	if again.Identity.Email != "a@b.com" {
		t.Fatalf("identity lost on refresh: %+v", again.Identity)
	}
}

func TestService_RefreshRejectsInvalidAndExpired(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Refresh(ctx, "bogus"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	issued, err := f.svc.Issue(ctx, "a@b.com", DeviceContext{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	f.clock.Advance(8 * 24 * time.Hour)
	if _, err := f.svc.Refresh(ctx, issued.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if f.store.Len() != 0 {
		t.Fatal("expired record survived refresh")
	}
}

func TestService_RevokeThenValidate(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	issued, err := f.svc.Issue(ctx, "a@b.com", DeviceContext{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := f.svc.Revoke(ctx, issued.Token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := f.svc.Revoke(ctx, issued.Token); err != nil {
		t.Fatalf("Revoke is not idempotent: %v", err)
	}
	if _, err := f.svc.Validate(ctx, issued.Token); !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized after revoke, got %v", err)
	}
	if err := f.svc.Revoke(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestService_RevokeAll(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	var mine []Session
	for range 3 {
		s, err := f.svc.Issue(ctx, "me@b.com", DeviceContext{})
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		mine = append(mine, s)
	}
	mixed, err := f.svc.Issue(ctx, "Me@B.com", DeviceContext{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	mine = append(mine, mixed)

	other, err := f.svc.Issue(ctx, "other@b.com", DeviceContext{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	n, err := f.svc.RevokeAll(ctx, "ME@b.com")
	if err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if n != 4 {
		t.Fatalf("revoked %d, want 4", n)
	}
	for _, s := range mine {
		if _, err := f.svc.Validate(ctx, s.Token); !IsUnauthorized(err) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	}
	if _, err := f.svc.Validate(ctx, other.Token); err != nil {
		t.Fatalf("other identity affected: %v", err)
	}
}

func TestService_Sweep(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	for range 2 {
		if _, err := f.svc.Issue(ctx, "old@b.com", DeviceContext{}); err != nil {
			t.Fatalf("Issue: %v", err)
		}
	}
	f.clock.Advance(6 * 24 * time.Hour)
	if _, err := f.svc.Issue(ctx, "new@b.com", DeviceContext{}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	f.clock.Advance(2 * 24 * time.Hour)

	n, err := f.svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 2 || f.store.Len() != 1 {
		t.Fatalf("swept=%d remaining=%d", n, f.store.Len())
	}
}

func TestService_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	f := newServiceFixture(t, WithMetrics(m))
	ctx := context.Background()

	issued, err := f.svc.Issue(ctx, "a@b.com", DeviceContext{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, _ = f.svc.Validate(ctx, issued.Token)
	_, _ = f.svc.Validate(ctx, "bogus")
	_, _ = f.svc.Refresh(ctx, issued.Token)
	_ = f.svc.Revoke(ctx, issued.Token)

	if got := testutil.ToFloat64(m.issued); got != 1 {
		t.Fatalf("issued = %v", got)
	}
	if got := testutil.ToFloat64(m.validations.WithLabelValues("ok")); got != 1 {
		t.Fatalf("validations ok = %v", got)
	}
	if got := testutil.ToFloat64(m.validations.WithLabelValues("invalid")); got != 1 {
		t.Fatalf("validations invalid = %v", got)
	}
	if got := testutil.ToFloat64(m.refreshed); got != 1 {
		t.Fatalf("refreshed = %v", got)
	}
	if got := testutil.ToFloat64(m.revoked); got != 1 {
		t.Fatalf("revoked = %v", got)
	}
}

func TestService_PasetoFormat(t *testing.T) {
	t.Parallel()

	codec, cfg := mustPasetoCodec(t, "sessiond")
	svc, err := NewService(cfg, NewMemoryStore(), codec, token.NewHasher(nil))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "a@b.com", DeviceContext{})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(issued.Token, "v4.public.") {
		t.Fatalf("unexpected token: %q", issued.Token)
	}
	got, err := svc.Validate(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.Identity.Email != "a@b.com" {
		t.Fatalf("email = %q", got.Identity.Email)
	}
	refreshed, err := svc.Refresh(ctx, issued.Token)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if refreshed.Token != issued.Token || !refreshed.ExpiresAt.After(issued.ExpiresAt) {
		t.Fatalf("refresh contract broken: %+v", refreshed)
	}
}

func TestService_ConcurrentIssueValidateRefresh(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers*3)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := f.svc.Issue(ctx, "race@b.com", DeviceContext{})
			if err != nil {
				errs <- err
				return
			}
			if _, err := f.svc.Validate(ctx, s.Token); err != nil {
				errs <- err
			}
			if _, err := f.svc.Refresh(ctx, s.Token); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent op failed: %v", err)
	}
	if f.store.Len() != workers {
		t.Fatalf("store has %d records, want %d", f.store.Len(), workers)
	}
}

func TestNewService_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	codec := mustHMACCodec(t, testKey)
	cfg := DefaultConfig()
	cfg.TTL = 0
	if _, err := NewService(cfg, NewMemoryStore(), codec, token.NewHasher(nil)); err != ErrConfig {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
	if _, err := NewService(DefaultConfig(), nil, codec, token.NewHasher(nil)); err != ErrConfig {
		t.Fatalf("expected ErrConfig for nil store, got %v", err)
	}
}
