package pgtx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		err      *Error
		expected string
	}{
		{
			err:      &Error{Message: "test error"},
			expected: "pgtx: test error",
		},
		{
			err:      &Error{Op: "Tx.Execute", Message: "failed"},
			expected: "pgtx.Tx.Execute: failed",
		},
		{
			err:      &Error{Op: "Tx.Execute", Message: "failed", Table: "items"},
			expected: "pgtx.Tx.Execute: failed (table: items)",
		},
		{
			err:      &Error{Op: "Tx.Execute", Message: "failed", Table: "items", Constraint: "items_pkey"},
			expected: "pgtx.Tx.Execute: failed (table: items) (constraint: items_pkey)",
		},
	}

	for _, tt := range tests {
		if tt.err.Error() != tt.expected {
			t.Errorf("expected %s, got %s", tt.expected, tt.err.Error())
		}
	}
}

func TestError_Is(t *testing.T) {
	tests := []struct {
		err    *Error
		target error
		match  bool
	}{
		{&Error{Code: CodeNotFound}, ErrNotFound, true},
		{&Error{Code: CodeDuplicate}, ErrDuplicate, true},
		{&Error{Code: CodeUnavailable}, ErrUnavailable, true},
		{&Error{Code: CodeTxDone}, ErrTxDone, true},
		{&Error{Code: CodeTxActive}, ErrTxActive, true},
		{&Error{Code: CodeNotFound}, ErrDuplicate, false},
		{&Error{Code: CodeUnknown}, ErrNotFound, false},
	}

	for _, tt := range tests {
		if errors.Is(tt.err, tt.target) != tt.match {
			t.Errorf("expected Is(%v, %v) = %v", tt.err.Code, tt.target, tt.match)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &Error{Code: CodeUnknown, Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
}

func TestWrapError_Nil(t *testing.T) {
	if wrapError(nil, "Test") != nil {
		t.Error("wrapError(nil) should return nil")
	}
}

func TestWrapError_AlreadyWrapped(t *testing.T) {
	original := &Error{Code: CodeNotFound, Message: "original"}
	wrapped := wrapError(fmt.Errorf("context: %w", original), "Test")

	var dbErr *Error
	if !errors.As(wrapped, &dbErr) || dbErr != original {
		t.Error("already wrapped error should be returned as-is")
	}
}

func TestWrapError_Sentinels(t *testing.T) {
	tests := []struct {
		err  error
		code ErrorCode
	}{
		{sql.ErrNoRows, CodeNotFound},
		{sql.ErrTxDone, CodeTxDone},
		{sql.ErrConnDone, CodeConnectionFailed},
		{context.DeadlineExceeded, CodeTimeout},
		{errors.New("something else"), CodeUnknown},
	}

	for _, tt := range tests {
		code, ok := GetErrorCode(wrapError(tt.err, "Test"))
		if !ok || code != tt.code {
			t.Errorf("wrapError(%v): expected %s, got %s", tt.err, tt.code, code)
		}
	}
}

func TestWrapPgError(t *testing.T) {
	tests := []struct {
		pgCode   string
		expected ErrorCode
	}{
		{"23505", CodeDuplicate},
		{"23503", CodeForeignKey},
		{"23502", CodeNotNullViolation},
		{"23514", CodeCheckViolation},
		{"42601", CodeSyntax},
		{"42P01", CodeSyntax},
		{"40001", CodeSerialization},
		{"40P01", CodeDeadlock},
		{"57014", CodeTimeout},
		{"08006", CodeConnectionFailed},
		{"99999", CodeUnknown},
	}

	for _, tt := range tests {
		pgErr := &pgconn.PgError{
			Code:           tt.pgCode,
			Message:        "test",
			TableName:      "items",
			ConstraintName: "items_pkey",
		}
		err := wrapError(pgErr, "Tx.Execute")

		var dbErr *Error
		if !errors.As(err, &dbErr) {
			t.Fatalf("%s: expected *Error", tt.pgCode)
		}
		if dbErr.Code != tt.expected {
			t.Errorf("%s: expected %s, got %s", tt.pgCode, tt.expected, dbErr.Code)
		}
		if dbErr.Table != "items" {
			t.Errorf("%s: expected table items, got %s", tt.pgCode, dbErr.Table)
		}
		if !errors.Is(err, pgErr) {
			t.Errorf("%s: cause should be the PgError", tt.pgCode)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(&Error{Code: CodeSerialization}) {
		t.Error("serialization failures are retryable")
	}
	if !IsRetryable(&Error{Code: CodeDeadlock}) {
		t.Error("deadlocks are retryable")
	}
	if IsRetryable(&Error{Code: CodeDuplicate}) {
		t.Error("duplicates are not retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
}
