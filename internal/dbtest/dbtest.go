// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"fknsrs.biz/p/sorm"
	_ "github.com/mattn/go-sqlite3"

	"fknsrs.biz/p/vidscribe/internal/migrations"
)

func Open(t testing.TB) *sql.DB {
	t.Helper()

	sorm.SetParameterPrefix("?")

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// each connection to :memory: is its own database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := migrations.Migrate(context.Background(), db); err != nil {
		t.Fatal(err)
	}

	return db
}

// Tx runs fn in a transaction and fails the test if anything goes wrong.
func Tx(t testing.TB, db *sql.DB, fn func(tx *sql.Tx) error) {
	t.Helper()

	tx, err := db.Begin()
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		t.Fatal(err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}
