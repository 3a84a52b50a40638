package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"sessiond/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; the store never closes it.
// Schema identifiers are validated and quoted.
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
			return fmt.Errorf("identity: invalid schema identifier %q", schema)
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "sessiond"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return st, nil
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// CreateAccount implements Store.
func (s *PostgresStore) CreateAccount(ctx context.Context, in CreateAccountInput) (Account, error) {
	const op = "identity.CreateAccount"

	email := NormalizeEmail(in.Email)
	if email == "" {
		return Account{}, invalid(op, "email is required")
	}
	now := nowOr(in.Now)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table("accounts")+` (email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		email, nullIfEmpty(in.PasswordHash), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, ConflictError{Op: op, Field: "email"}
		}
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return Account{Email: email, PasswordHash: in.PasswordHash, CreatedAt: now, UpdatedAt: now}, nil
}

// GetAccount implements Store.
func (s *PostgresStore) GetAccount(ctx context.Context, email string) (Account, error) {
	const op = "identity.GetAccount"

	var (
		acct Account
		hash *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT email, password_hash, created_at, updated_at
		   FROM `+s.table("accounts")+`
		  WHERE email = $1`,
		NormalizeEmail(email),
	).Scan(&acct.Email, &hash, &acct.CreatedAt, &acct.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, notFound(op, "account")
	}
	if err != nil {
		return Account{}, fmt.Errorf("%s: %w", op, err)
	}
	if hash != nil {
		acct.PasswordHash = *hash
	}
	return acct, nil
}

// SetPasswordHash implements Store.
func (s *PostgresStore) SetPasswordHash(ctx context.Context, email, hash string, now time.Time) error {
	const op = "identity.SetPasswordHash"

	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table("accounts")+`
		    SET password_hash = $2, updated_at = $3
		  WHERE email = $1`,
		NormalizeEmail(email), nullIfEmpty(hash), nowOr(now),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(op, "account")
	}
	return nil
}

// CreateOrganization implements Store.
func (s *PostgresStore) CreateOrganization(ctx context.Context, in CreateOrganizationInput) (Organization, error) {
	const op = "identity.CreateOrganization"

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

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return Organization{}, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table("organizations")+` (id, name, owner_id, created_at)
		 VALUES ($1, $2, $3, $4)`,
		id, name, owner, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Organization{}, ConflictError{Op: op, Field: "organization"}
		}
		return Organization{}, fmt.Errorf("%s: %w", op, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+s.table("organization_members")+` (organization_id, user_id, role, created_at)
		 VALUES ($1, $2, $3, $4)`,
		id, owner, string(RoleOwner), now,
	)
	if err != nil {
		return Organization{}, fmt.Errorf("%s: membership: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Organization{}, fmt.Errorf("%s: commit: %w", op, err)
	}
	return Organization{ID: id, Name: name, OwnerID: owner, CreatedAt: now}, nil
}

// PrimaryOrganization implements Store.
func (s *PostgresStore) PrimaryOrganization(ctx context.Context, userID string) (Organization, error) {
	const op = "identity.PrimaryOrganization"

	var org Organization
	err := s.pool.QueryRow(ctx,
		`SELECT o.id, o.name, o.owner_id, o.created_at
		   FROM `+s.table("organizations")+` o
		   JOIN `+s.table("organization_members")+` m ON m.organization_id = o.id
		  WHERE m.user_id = $1
		  ORDER BY o.id
		  LIMIT 1`,
		NormalizeEmail(userID),
	).Scan(&org.ID, &org.Name, &org.OwnerID, &org.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Organization{}, notFound(op, "organization")
	}
	if err != nil {
		return Organization{}, fmt.Errorf("%s: %w", op, err)
	}
	return org, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
