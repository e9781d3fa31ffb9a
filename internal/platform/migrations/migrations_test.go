package migrations

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestApplyExecutesAllStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	for range statements {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Apply(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyStopsOnFirstFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(".*").WillReturnError(fmt.Errorf("boom"))

	err = Apply(context.Background(), db)
	if err == nil {
		t.Fatal("expected error from second statement")
	}
	if !strings.Contains(err.Error(), "migration 2") {
		t.Fatalf("error should name the failing statement, got %v", err)
	}
}

func TestSchemaCoversMirrorTables(t *testing.T) {
	joined := strings.Join(statements, "\n")
	for _, table := range []string{"pools", "pool_members", "pool_activity"} {
		if !strings.Contains(joined, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("schema missing table %s", table)
		}
	}
	if !strings.Contains(joined, "UNIQUE (pool_id, tx_hash)") {
		t.Fatal("schema missing the activity idempotency constraint")
	}
}
