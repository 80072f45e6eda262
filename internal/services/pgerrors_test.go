package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func uniqueViolationErr() error {
	return &pgconn.PgError{Code: pgerrcode.UniqueViolation}
}

func foreignKeyViolationErr() error {
	return &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(uniqueViolationErr()) {
		t.Fatal("expected unique violation to match")
	}
	if !isUniqueViolation(fmt.Errorf("inserting: %w", uniqueViolationErr())) {
		t.Fatal("expected wrapped unique violation to match")
	}
	if isUniqueViolation(foreignKeyViolationErr()) {
		t.Fatal("foreign key violation must not match")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatal("plain error must not match")
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	if !isForeignKeyViolation(foreignKeyViolationErr()) {
		t.Fatal("expected foreign key violation to match")
	}
	if isForeignKeyViolation(uniqueViolationErr()) {
		t.Fatal("unique violation must not match")
	}
}
