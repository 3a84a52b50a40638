package migrations

import (
	"strings"
	"testing"
)

func TestUpSQL_RetargetsSchema(t *testing.T) {
	t.Parallel()

	sql, err := UpSQL("sessiond_it_x")
	if err != nil {
		t.Fatalf("UpSQL: %v", err)
	}
	if strings.Contains(sql, "sessiond.") {
		t.Fatalf("default schema leaked into retargeted sql")
	}
	for _, want := range []string{
		"CREATE SCHEMA IF NOT EXISTS sessiond_it_x;",
		"sessiond_it_x.sessions",
		"sessiond_it_x.accounts",
		"sessiond_it_x.organizations",
		"sessiond_it_x.organization_members",
		"sessiond_it_x.audit_log",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("expected %q in sql", want)
		}
	}
}

func TestUpSQL_RejectsBadIdentifier(t *testing.T) {
	t.Parallel()

	for _, schema := range []string{"", "Bad", "x;drop", "1abc", "a-b"} {
		if _, err := UpSQL(schema); err == nil {
			t.Fatalf("expected error for %q", schema)
		}
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	ups, _ := files.ReadDir("sql")
	counts := map[string]int{}
	for _, e := range ups {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			counts[strings.TrimSuffix(name, ".up.sql")]++
		case strings.HasSuffix(name, ".down.sql"):
			counts[strings.TrimSuffix(name, ".down.sql")]++
		default:
			t.Fatalf("unexpected file %q", name)
		}
	}
	if len(counts) == 0 {
		t.Fatal("no migrations embedded")
	}
	for version, n := range counts {
		if n != 2 {
			t.Fatalf("migration %s has %d files, want up+down", version, n)
		}
	}
}
