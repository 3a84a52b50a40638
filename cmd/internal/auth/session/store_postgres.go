package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (<schema>.sessions).
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "sessiond").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("session: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore creates a Postgres-backed session store. The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool, schema: "sessiond"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.pool == nil {
		return nil, errors.New("session: nil pool")
	}
	return s, nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "sessions"}.Sanitize()
}

const recordColumns = `id, token_hash, user_id, email, created_at, last_used_at, expires_at, user_agent, host(ip)`

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table()+` (
			id, token_hash, user_id, email,
			created_at, last_used_at, expires_at,
			user_agent, ip
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9
		)
	`, rec.ID, rec.TokenHash, rec.UserID, rec.Email,
		rec.CreatedAt, rec.LastUsedAt, rec.ExpiresAt,
		nullIfEmpty(rec.UserAgent), ipOrNil(rec.IP))
	return err
}

// GetByTokenHash loads a session row by token hash.
func (s *PostgresStore) GetByTokenHash(ctx context.Context, tokenHash string) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM `+s.table()+`
		WHERE token_hash = $1
	`, tokenHash)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrSessionNotFound
	}
	return rec, err
}

// Extend moves expires_at forward in a single statement; the WHERE clause
// rejects rows that already expired.
func (s *PostgresStore) Extend(ctx context.Context, tokenHash string, now, expiresAt time.Time) (Record, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE `+s.table()+`
		SET expires_at = GREATEST($3, expires_at + interval '1 millisecond'),
		    last_used_at = $2
		WHERE token_hash = $1
		  AND expires_at > $2
		RETURNING `+recordColumns+`
	`, tokenHash, now, expiresAt)

	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, err
	}

	// Distinguish missing from expired for the caller.
	if _, getErr := s.GetByTokenHash(ctx, tokenHash); getErr != nil {
		return Record{}, getErr
	}
	return Record{}, ErrSessionExpired
}

// Touch updates last_used_at for a session.
func (s *PostgresStore) Touch(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table()+`
		SET last_used_at = $2
		WHERE token_hash = $1
	`, tokenHash, now)
	return err
}

// Delete removes a session row (idempotent).
func (s *PostgresStore) Delete(ctx context.Context, tokenHash string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE token_hash = $1`, tokenHash)
	return err
}

// DeleteByUser removes every session of a user (idempotent).
func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// DeleteExpired removes sessions whose expiry is at or before now.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table()+` WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Ping checks database reachability.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec Record
		ua  *string
		ip  *string
	)
	err := row.Scan(
		&rec.ID,
		&rec.TokenHash,
		&rec.UserID,
		&rec.Email,
		&rec.CreatedAt,
		&rec.LastUsedAt,
		&rec.ExpiresAt,
		&ua,
		&ip,
	)
	if err != nil {
		return Record{}, err
	}
	if ua != nil {
		rec.UserAgent = *ua
	}
	if ip != nil {
		rec.IP = net.ParseIP(*ip)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	if rec.LastUsedAt != nil {
		t := rec.LastUsedAt.UTC()
		rec.LastUsedAt = &t
	}
	return rec, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func ipOrNil(ip net.IP) any {
	if ip == nil {
		return nil
	}
	return ip
}
