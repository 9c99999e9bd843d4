//go:build integration

package repository

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/lib/pq"

	"github.com/bazaarly/analytics/internal/testutil"
)

// ============================================================================
// Migration Integration Tests
// ============================================================================

// These run over database/sql with lib/pq, independently of the pgx pool the
// application uses, so a migration that only works through pgx's simple
// protocol handling is caught.

func TestIntegrationMigration_EventsTableSchema(t *testing.T) {
	ctx, db := newMigrationTestEnv(t)

	expectedColumns := []string{
		"id",
		"event_type",
		"event_name",
		"properties",
		"value",
		"currency",
		"user_id",
		"source",
		"medium",
		"campaign",
		"session_id",
		"ip_address",
		"user_agent",
		"referrer",
		"country",
		"city",
		"device",
		"browser",
		"os",
		"created_at",
		"event_date",
		"event_hour",
	}

	for _, col := range expectedColumns {
		t.Run(col, func(t *testing.T) {
			exists, err := columnExists(ctx, db, "analytics_events", col)
			if err != nil {
				t.Fatalf("columnExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Column %q should exist in analytics_events table", col)
			}
		})
	}
}

func TestIntegrationMigration_EventsConstraints(t *testing.T) {
	ctx, db := newMigrationTestEnv(t)

	insert := `
		INSERT INTO analytics_events (id, event_type, event_name, value, currency, created_at, event_date, event_hour)
		VALUES ($1, $2, $3, $4, $5, '2026-03-10T10:30:00Z', '2026-03-10', $6)
	`

	cases := []struct {
		name string
		args []interface{}
	}{
		{"unknown event type", []interface{}{"c1", "signup", "Signup", nil, nil, 10}},
		{"empty name", []interface{}{"c2", "page_view", "", nil, nil, 10}},
		{"value without currency", []interface{}{"c3", "purchase", "Purchase", "10.00", nil, 10}},
		{"lowercase currency", []interface{}{"c4", "purchase", "Purchase", "10.00", "eur", 10}},
		{"hour not derived from created_at", []interface{}{"c5", "page_view", "Page View", nil, nil, 11}},
	}

	for _, tc := range cases {
		if _, err := db.ExecContext(ctx, insert, tc.args...); err == nil {
			t.Errorf("%s: expected constraint violation", tc.name)
		}
	}

	if _, err := db.ExecContext(ctx, insert, "ok", "purchase", "Purchase", "10.00", "EUR", 10); err != nil {
		t.Fatalf("valid insert failed: %v", err)
	}
}

func TestIntegrationMigration_AppendOnlyTrigger(t *testing.T) {
	ctx, db := newMigrationTestEnv(t)

	if _, err := db.ExecContext(ctx, `
		INSERT INTO analytics_events (id, event_type, event_name, created_at, event_date, event_hour)
		VALUES ('t1', 'page_view', 'Page View', '2026-03-10T10:30:00Z', '2026-03-10', 10)
	`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	_, err := db.ExecContext(ctx, `UPDATE analytics_events SET event_name = 'x' WHERE id = 't1'`)
	if err == nil {
		t.Fatal("UPDATE should be rejected")
	}
	if pqErr, ok := err.(*pq.Error); !ok || pqErr.Code.Name() != "restrict_violation" {
		t.Errorf("UPDATE error = %v, want restrict_violation", err)
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM analytics_events`); err == nil {
		t.Error("DELETE should be rejected")
	}
	if _, err := db.ExecContext(ctx, `TRUNCATE analytics_events`); err == nil {
		t.Error("TRUNCATE should be rejected")
	}
}

func TestIntegrationMigration_Rollback(t *testing.T) {
	ctx, db := newMigrationTestEnv(t)

	applyMigration(t, ctx, db, "000001_analytics_events.down.sql")

	exists, err := tableExists(ctx, db, "analytics_events")
	if err != nil {
		t.Fatalf("tableExists failed: %v", err)
	}
	if exists {
		t.Error("analytics_events table should not exist after rollback")
	}

	applyMigration(t, ctx, db, "000001_analytics_events.up.sql")
}

func TestIntegrationMigration_Idempotency(t *testing.T) {
	ctx, db := newMigrationTestEnv(t)

	// Up migration uses IF NOT EXISTS / CREATE OR REPLACE throughout.
	applyMigration(t, ctx, db, "000001_analytics_events.up.sql")
}

// ============================================================================
// Helper Functions
// ============================================================================

func applyMigration(t *testing.T, ctx context.Context, db *sql.DB, name string) {
	t.Helper()

	root, err := testutil.ProjectRoot()
	if err != nil {
		t.Fatalf("ProjectRoot failed: %v", err)
	}
	migration, err := os.ReadFile(filepath.Join(root, "migrations", name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	if _, err := db.ExecContext(ctx, string(migration)); err != nil {
		t.Fatalf("apply %s: %v", name, err)
	}
}

func tableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, db *sql.DB, tableName, columnName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		)
	`, tableName, columnName).Scan(&exists)
	return exists, err
}

// ============================================================================
// Test Environment Setup
// ============================================================================

func newMigrationTestEnv(t *testing.T) (context.Context, *sql.DB) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	connector, err := pq.NewConnector(dbURL)
	if err != nil {
		t.Fatalf("parse database url: %v", err)
	}
	db := sql.OpenDB(connector)
	t.Cleanup(func() { _ = db.Close() })

	// Session-level advisory locks need a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "SELECT pg_advisory_lock($1)", testutil.AdvisoryLockID); err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", testutil.AdvisoryLockID)
	})

	applyMigration(t, ctx, db, "000001_analytics_events.down.sql")
	applyMigration(t, ctx, db, "000001_analytics_events.up.sql")

	return ctx, db
}
