package db

import (
	"database/sql"
	"strings"
	"testing"
)

func TestDSN(t *testing.T) {
	dsn := DSN("/tmp/ledger.sqlite3")
	if !strings.HasPrefix(dsn, "file:/tmp/ledger.sqlite3?") {
		t.Errorf("unexpected prefix: %s", dsn)
	}
	if !strings.Contains(dsn, "_txlock=immediate") {
		t.Errorf("expected immediate transactions: %s", dsn)
	}
	if !strings.Contains(dsn, "_pragma=foreign_keys%281%29") {
		t.Errorf("expected foreign keys pragma: %s", dsn)
	}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	database := NewTestDB(t)
	if err := EnsureSchema(database); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	database := NewTestDB(t)
	_, err := database.Exec(
		`INSERT INTO warehouses (id, organization_id, name, created_at, updated_at)
		 VALUES ('w1', 'missing-org', 'Main', '2026-01-01', '2026-01-01')`,
	)
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestMovementsAppendOnly(t *testing.T) {
	database := NewTestDB(t)
	mustExec(t, database, `INSERT INTO users (id, external_id, email, created_at, updated_at)
		VALUES ('u1', 'ext-1', 'a@example.com', '2026-01-01', '2026-01-01')`)
	mustExec(t, database, `INSERT INTO organizations (id, name, created_by, created_at, updated_at)
		VALUES ('o1', 'Acme', 'u1', '2026-01-01', '2026-01-01')`)
	mustExec(t, database, `INSERT INTO stock_movements
		(id, organization_id, product_id, warehouse_id, direction, magnitude, reason, created_at)
		VALUES ('m1', 'o1', 'p1', 'w1', 'in', 5, 'initial', '2026-01-01')`)

	_, err := database.Exec(`UPDATE stock_movements SET magnitude = 6 WHERE id = 'm1'`)
	if err == nil || !strings.Contains(err.Error(), "append-only") {
		t.Fatalf("expected append-only violation, got %v", err)
	}
}

func mustExec(t *testing.T, database interface {
	Exec(query string, args ...any) (sql.Result, error)
}, query string) {
	t.Helper()
	if _, err := database.Exec(query); err != nil {
		t.Fatalf("exec: %v", err)
	}
}
