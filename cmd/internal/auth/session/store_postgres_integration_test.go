package session

import (
	"testing"

	"sessiond/cmd/internal/app/migrations/pgtest"
)

// Integration tests are enabled when SESSIOND_DATABASE_URL is set.

func TestPostgresStore_Contract(t *testing.T) {
	pool := pgtest.Open(t)

	runStoreContract(t, func(t *testing.T) Store {
		schema := pgtest.Schema(t, pool)
		s, err := NewPostgresStore(pool, WithSchema(schema))
		if err != nil {
			t.Fatalf("NewPostgresStore: %v", err)
		}
		return s
	})
}

func TestNewPostgresStore_Validation(t *testing.T) {
	t.Parallel()

	if _, err := NewPostgresStore(nil); err == nil {
		t.Fatal("expected error for nil pool")
	}
	if _, err := NewPostgresStore(nil, WithSchema("bad;schema")); err == nil {
		t.Fatal("expected error for bad schema")
	}
}
