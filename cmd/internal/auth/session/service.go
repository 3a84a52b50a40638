package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"sessiond/cmd/identity"
	"sessiond/cmd/identity/ids"
	"sessiond/cmd/security/token"
)

// Service implements the session operations shared by every transport.
//
// Issue mints a token and its backing record, Validate recovers the identity
// behind a presented token, Refresh extends the record while keeping the
// token value, and Revoke/RevokeAll delete records.
type Service struct {
	cfg     Config
	codec   Codec
	hasher  token.Hasher
	store   Store
	metrics *Metrics
	log     *slog.Logger
	now     func() time.Time
}

// Session is the result of issuing, validating or refreshing a token.
type Session struct {
	ID        string
	Token     string
	Identity  identity.Identity
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger for best-effort failures.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService constructs a Service.
func NewService(cfg Config, store Store, codec Codec, hasher token.Hasher, opts ...Option) (*Service, error) {
	if store == nil || codec == nil {
		return nil, ErrConfig
	}
	if cfg.TTL <= 0 || cfg.NonceBytes <= 0 {
		return nil, ErrConfig
	}

	s := &Service{
		cfg:    cfg,
		codec:  codec,
		hasher: hasher,
		store:  store,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// TTL returns the session lifetime granted on issue and refresh.
func (s *Service) TTL() time.Duration { return s.cfg.TTL }

// Store returns the backing store (readiness checks).
func (s *Service) Store() Store { return s.store }

// clock returns the current time truncated to the millisecond precision used
// by tokens and by the wire format.
func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Issue creates a new session for email.
//
// Every call yields a distinct token; concurrent sessions per identity are allowed.
func (s *Service) Issue(ctx context.Context, email string, dev DeviceContext) (Session, error) {
	id := identity.FromEmail(email)
	if id.IsZero() {
		return Session{}, ErrInvalidIdentity
	}

	now := s.clock()
	nonce, err := token.NewOpaque(s.cfg.NonceBytes)
	if err != nil {
		return Session{}, err
	}

	tok, err := s.codec.Encode(Claims{Email: id.Email, IssuedAt: now, Nonce: nonce})
	if err != nil {
		return Session{}, err
	}

	recID, err := ids.NewULID(now)
	if err != nil {
		return Session{}, err
	}

	rec := Record{
		ID:        recID,
		TokenHash: s.hasher.HashHex(tok),
		UserID:    id.AccountKey(),
		Email:     id.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
		UserAgent: strings.TrimSpace(dev.UserAgent),
		IP:        dev.IP,
	}

	start := time.Now()
	err = s.store.Create(ctx, rec)
	s.metrics.observeStore("create", start)
	if err != nil {
		return Session{}, err
	}

	s.metrics.recordIssued()
	return Session{
		ID:        rec.ID,
		Token:     tok,
		Identity:  id,
		IssuedAt:  now,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// Validate verifies raw and returns the session behind it.
//
// Decoding failures, missing records and expired records all fail closed with
// ErrInvalidToken, ErrSessionNotFound or ErrSessionExpired. Expired records are
// deleted lazily. Other errors are infrastructure failures.
func (s *Service) Validate(ctx context.Context, raw string) (Session, error) {
	sess, err := s.validate(ctx, raw)
	s.metrics.recordValidation(err)
	return sess, err
}

func (s *Service) validate(ctx context.Context, raw string) (Session, error) {
	claims, hash, err := s.decode(raw)
	if err != nil {
		return Session{}, err
	}

	start := time.Now()
	rec, err := s.store.GetByTokenHash(ctx, hash)
	s.metrics.observeStore("get", start)
	if err != nil {
		return Session{}, err
	}

	if rec.Email != claims.Email {
		return Session{}, ErrInvalidToken
	}

	now := s.clock()
	if !rec.ActiveAt(now) {
		if err := s.store.Delete(ctx, hash); err != nil {
			s.log.Warn("session.validate.delete_expired.fail", "err", err, "session_id", rec.ID)
		}
		return Session{}, ErrSessionExpired
	}

	if err := s.store.Touch(ctx, hash, now); err != nil {
		s.log.Debug("session.validate.touch.fail", "err", err, "session_id", rec.ID)
	}

	return sessionFrom(rec, raw, claims), nil
}

// Refresh extends the session behind raw to now+TTL and returns it with the
// same token value. The new expiry is always strictly later than the previous one.
func (s *Service) Refresh(ctx context.Context, raw string) (Session, error) {
	claims, hash, err := s.decode(raw)
	if err != nil {
		return Session{}, err
	}

	now := s.clock()
	start := time.Now()
	rec, err := s.store.Extend(ctx, hash, now, now.Add(s.cfg.TTL))
	s.metrics.observeStore("extend", start)
	if errors.Is(err, ErrSessionExpired) {
		if delErr := s.store.Delete(ctx, hash); delErr != nil {
			s.log.Warn("session.refresh.delete_expired.fail", "err", delErr)
		}
		return Session{}, err
	}
	if err != nil {
		return Session{}, err
	}

	if rec.Email != claims.Email {
		return Session{}, ErrInvalidToken
	}

	s.metrics.recordRefreshed()
	return sessionFrom(rec, raw, claims), nil
}

// Revoke deletes the session behind raw. Revoking an unknown session is not an error.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	_, hash, err := s.decode(raw)
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.store.Delete(ctx, hash)
	s.metrics.observeStore("delete", start)
	if err != nil {
		return err
	}
	s.metrics.recordRevoked(1)
	return nil
}

// RevokeAll deletes every session of the account owning email, whatever
// letter case each session was issued under.
func (s *Service) RevokeAll(ctx context.Context, email string) (int, error) {
	id := identity.FromEmail(email)
	if id.IsZero() {
		return 0, ErrInvalidIdentity
	}

	start := time.Now()
	n, err := s.store.DeleteByUser(ctx, id.AccountKey())
	s.metrics.observeStore("delete_by_user", start)
	if err != nil {
		return 0, err
	}
	s.metrics.recordRevoked(n)
	return n, nil
}

// Sweep removes expired records and returns how many were removed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.store.DeleteExpired(ctx, s.clock())
	s.metrics.observeStore("delete_expired", start)
	if err != nil {
		return 0, err
	}
	s.metrics.recordSwept(n)
	return n, nil
}

func (s *Service) decode(raw string) (Claims, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxTokenLen {
		return Claims{}, "", ErrInvalidToken
	}

	claims, err := s.codec.Decode(raw)
	if err != nil {
		return Claims{}, "", ErrInvalidToken
	}
	return claims, s.hasher.HashHex(raw), nil
}

func sessionFrom(rec Record, raw string, claims Claims) Session {
	return Session{
		ID:        rec.ID,
		Token:     strings.TrimSpace(raw),
		Identity:  identity.FromEmail(rec.Email),
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: rec.ExpiresAt.UTC(),
	}
}
