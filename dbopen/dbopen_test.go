package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpenMemory_PragmasApplied(t *testing.T) {
	// WHAT: OpenMemory yields a database with foreign_keys enabled.
	// WHY: Cascade deletes across the entity graph depend on this pragma.
	db := OpenMemory(t)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("pragma query: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestOpen_WithSchema(t *testing.T) {
	// WHAT: WithSchema executes inline DDL after pragmas.
	// WHY: Callers open and migrate in a single step.
	db := OpenMemory(t, WithSchema(`CREATE TABLE things (id TEXT PRIMARY KEY)`))

	if _, err := db.Exec(`INSERT INTO things (id) VALUES ('a')`); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}
}

func TestRunTx_CommitsOnSuccess(t *testing.T) {
	// WHAT: RunTx commits when fn returns nil.
	db := OpenMemory(t, WithSchema(`CREATE TABLE things (id TEXT PRIMARY KEY)`))
	ctx := context.Background()

	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO things (id) VALUES ('a')`)
		return err
	})
	if err != nil {
		t.Fatalf("RunTx: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM things`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestRunTx_RollsBackOnError(t *testing.T) {
	// WHAT: RunTx rolls back when fn returns an error.
	// WHY: Partial writes inside the claim or completion transactions must
	// never become visible.
	db := OpenMemory(t, WithSchema(`CREATE TABLE things (id TEXT PRIMARY KEY)`))
	ctx := context.Background()

	boom := errors.New("boom")
	err := RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO things (id) VALUES ('a')`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM things`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("count = %d, want 0 after rollback", n)
	}
}

func TestIsBusy(t *testing.T) {
	// WHAT: IsBusy matches the SQLite lock error strings and nothing else.
	if IsBusy(nil) {
		t.Error("nil should not be busy")
	}
	if !IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")) {
		t.Error("SQLITE_BUSY should be busy")
	}
	if IsBusy(errors.New("no such table: things")) {
		t.Error("unrelated error should not be busy")
	}
}
