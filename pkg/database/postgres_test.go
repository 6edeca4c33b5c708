package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

func TestApplySchema(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	logger, _ := logrustest.NewNullLogger()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS tenants`).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := ApplySchema(context.Background(), db, logger); err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestApplySchemaPropagatesError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	logger, _ := logrustest.NewNullLogger()

	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))

	if err := ApplySchema(context.Background(), db, logger); err == nil {
		t.Fatal("expected error")
	}
}

func TestConnectRequiresURL(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	if _, err := Connect(context.Background(), Config{}, logger); err == nil {
		t.Fatal("expected error for empty URL")
	}
}
