package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/deepresearch/dbopen"
)

func pragmaInt(t *testing.T, db *sql.DB, name string) int {
	t.Helper()
	var v int
	if err := db.QueryRow("PRAGMA " + name).Scan(&v); err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
	return v
}

func TestOpenMemory_Pragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)
	if fk := pragmaInt(t, db, "foreign_keys"); fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}
	if s := pragmaInt(t, db, "synchronous"); s != 1 {
		t.Fatalf("synchronous = %d, want 1 (NORMAL)", s)
	}
	if bt := pragmaInt(t, db, "busy_timeout"); bt != 10_000 {
		t.Fatalf("busy_timeout = %d", bt)
	}
}

func TestOptions(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithBusyTimeout(250), dbopen.WithoutForeignKeys(), dbopen.WithSynchronous("FULL"))
	if bt := pragmaInt(t, db, "busy_timeout"); bt != 250 {
		t.Fatalf("busy_timeout = %d", bt)
	}
	if fk := pragmaInt(t, db, "foreign_keys"); fk != 0 {
		t.Fatalf("foreign_keys = %d, want 0", fk)
	}
	if s := pragmaInt(t, db, "synchronous"); s != 2 {
		t.Fatalf("synchronous = %d, want 2 (FULL)", s)
	}
}

func TestWithSchema(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v TEXT)`))
	if _, err := db.Exec(`INSERT INTO kv VALUES ('a', 'b')`); err != nil {
		t.Fatalf("schema not applied: %v", err)
	}
}

func TestWithSchema_Invalid(t *testing.T) {
	if _, err := dbopen.Open(":memory:", dbopen.WithSchema("NOT SQL")); err == nil {
		t.Fatal("expected error for invalid schema")
	}
}

func TestWithMkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "app.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		t.Fatal(err)
	}
	db.Close()
}

func TestIsBusy(t *testing.T) {
	cases := map[string]bool{
		"SQLITE_BUSY":                    true,
		"database is locked":             true,
		"database table is locked (262)": true,
		"no such table":                  false,
	}
	for msg, want := range cases {
		if got := dbopen.IsBusy(errors.New(msg)); got != want {
			t.Errorf("IsBusy(%q) = %v", msg, got)
		}
	}
	if dbopen.IsBusy(nil) {
		t.Error("IsBusy(nil) = true")
	}
}

func TestRunTx_CommitAndRollback(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE n (v INTEGER)`))
	ctx := context.Background()

	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO n VALUES (1)`)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err = dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO n VALUES (2)`)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM n`).Scan(&count)
	if count != 1 {
		t.Fatalf("rows = %d, want 1 (rollback)", count)
	}
}

func TestExec(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE n (v INTEGER)`))
	res, err := dbopen.Exec(context.Background(), db, `INSERT INTO n VALUES (?)`, 7)
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("rows affected = %d", n)
	}
}
