package migrate

import (
	"context"
	"testing"

	"hostflow/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Memory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	first, err := Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := migrations[len(migrations)-1].Version; first != want {
		t.Fatalf("expected version %d, got %d", want, first)
	}
	second, err := Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if second != first {
		t.Fatalf("version moved on rerun: %d -> %d", first, second)
	}
	var rows int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version`).Scan(&rows); err != nil {
		t.Fatalf("count schema_version: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one schema_version row, got %d", rows)
	}
	for _, table := range []string{"profiles", "entities", "media", "memberships", "events"} {
		var name string
		err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestEntityStatusConstraint(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Memory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if _, err := Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err = conn.ExecContext(ctx, `INSERT INTO entities(id,owner_id,kind,status,fields_json,created_at,updated_at) VALUES ('e1','u1','property','archived','{}','t','t')`)
	if err == nil {
		t.Fatalf("expected check constraint to reject unknown status")
	}
}
