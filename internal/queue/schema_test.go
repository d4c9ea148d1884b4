package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpenPathRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.db")
	store, err := OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	if _, err := store.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion+1)); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	store.Close()

	_, err = OpenPath(path)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("expected error to name the database file, got %v", err)
	}
}

func TestOpenPathRejectsUnversionedTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.db")
	store, err := OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	if _, err := store.db.Exec("PRAGMA user_version = 0"); err != nil {
		t.Fatalf("clear version: %v", err)
	}
	store.Close()

	if _, err := OpenPath(path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch for unversioned tables, got %v", err)
	}
}

func TestHealthReportsSchemaVersion(t *testing.T) {
	store, err := OpenPath(filepath.Join(t.TempDir(), "fleet.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	defer store.Close()

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if health.SchemaVersion != schemaVersion || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %+v", health)
	}
}

func TestSQLiteDSNEnablesForeignKeys(t *testing.T) {
	dsn := sqliteDSN("/tmp/fleet.db")
	for _, want := range []string{"foreign_keys", "busy_timeout", "_txlock=immediate"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}

	store, err := OpenPath(filepath.Join(t.TempDir(), "fleet.db"))
	if err != nil {
		t.Fatalf("OpenPath failed: %v", err)
	}
	defer store.Close()
	var enabled int
	if err := store.db.QueryRowContext(context.Background(), "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		t.Fatalf("read pragma: %v", err)
	}
	if enabled != 1 {
		t.Fatalf("expected foreign keys enabled, got %d", enabled)
	}
}

func TestTimestampsSortAsText(t *testing.T) {
	early := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	late := early.Add(1500 * time.Millisecond)
	if !(formatTime(early) < formatTime(late)) {
		t.Fatalf("expected %s < %s", formatTime(early), formatTime(late))
	}
	parsed, err := parseTimeString(formatTime(late))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(late) {
		t.Fatalf("round trip mismatch: %v != %v", parsed, late)
	}
}

func TestMakePlaceholders(t *testing.T) {
	cases := map[int]string{0: "", 1: "?", 3: "?,?,?"}
	for n, want := range cases {
		if got := makePlaceholders(n); got != want {
			t.Fatalf("makePlaceholders(%d) = %q, want %q", n, got, want)
		}
	}
}
