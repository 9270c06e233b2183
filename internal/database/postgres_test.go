package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestMigrate_AppliesSQLFilesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	fsys := fstest.MapFS{
		"002_audit.sql":  {Data: []byte("CREATE TABLE IF NOT EXISTS b (id int)")},
		"001_ledger.sql": {Data: []byte("CREATE TABLE IF NOT EXISTS a (id int)")},
		"README.md":      {Data: []byte("ignored")},
	}
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS b").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := Migrate(context.Background(), db, fsys, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConnect_RequiresURL(t *testing.T) {
	if _, err := Connect(context.Background(), Config{}, nil); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
