package pgtx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun/driver/pgdriver"
)

// ErrorCode represents a database error classification
type ErrorCode string

const (
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeForeignKey       ErrorCode = "FOREIGN_KEY"
	CodeCheckViolation   ErrorCode = "CHECK_VIOLATION"
	CodeNotNullViolation ErrorCode = "NOT_NULL"
	CodeSyntax           ErrorCode = "SYNTAX"
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	CodeUnavailable      ErrorCode = "UNAVAILABLE"
	CodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeSerialization    ErrorCode = "SERIALIZATION"
	CodeDeadlock         ErrorCode = "DEADLOCK"
	CodeTxBegin          ErrorCode = "TX_BEGIN"
	CodeTxActive         ErrorCode = "TX_ACTIVE"
	CodeTxDone           ErrorCode = "TX_DONE"
	CodeConnClosed       ErrorCode = "CONN_CLOSED"
	CodeUnknown          ErrorCode = "UNKNOWN"
)

// Sentinel errors for quick checks
var (
	ErrNotFound         = errors.New("pgtx: record not found")
	ErrDuplicate        = errors.New("pgtx: duplicate key violation")
	ErrForeignKey       = errors.New("pgtx: foreign key violation")
	ErrCheckViolation   = errors.New("pgtx: check constraint violation")
	ErrNotNullViolation = errors.New("pgtx: not null violation")
	ErrSyntax           = errors.New("pgtx: syntax error")
	ErrConnection       = errors.New("pgtx: connection failed")
	ErrUnavailable      = errors.New("pgtx: no connection available")
	ErrInvalidConfig    = errors.New("pgtx: invalid configuration")
	ErrTimeout          = errors.New("pgtx: operation timeout")
	ErrSerialization    = errors.New("pgtx: serialization failure")
	ErrDeadlock         = errors.New("pgtx: deadlock detected")
	ErrTxBegin          = errors.New("pgtx: failed to start transaction")
	ErrTxActive         = errors.New("pgtx: connection already has an open transaction")
	ErrTxDone           = errors.New("pgtx: transaction has already been committed or rolled back")
	ErrConnClosed       = errors.New("pgtx: connection has been released")
)

var sentinels = map[ErrorCode]error{
	CodeNotFound:         ErrNotFound,
	CodeDuplicate:        ErrDuplicate,
	CodeForeignKey:       ErrForeignKey,
	CodeCheckViolation:   ErrCheckViolation,
	CodeNotNullViolation: ErrNotNullViolation,
	CodeSyntax:           ErrSyntax,
	CodeConnectionFailed: ErrConnection,
	CodeUnavailable:      ErrUnavailable,
	CodeInvalidConfig:    ErrInvalidConfig,
	CodeTimeout:          ErrTimeout,
	CodeSerialization:    ErrSerialization,
	CodeDeadlock:         ErrDeadlock,
	CodeTxBegin:          ErrTxBegin,
	CodeTxActive:         ErrTxActive,
	CodeTxDone:           ErrTxDone,
	CodeConnClosed:       ErrConnClosed,
}

// Error is a rich database error with context
type Error struct {
	Code       ErrorCode // Error classification
	Message    string    // Human-readable message
	Op         string    // Operation that failed (e.g., "Tx.Execute", "Connect")
	Table      string    // Table name if known
	Column     string    // Column name if known
	Constraint string    // Constraint name if applicable
	Detail     string    // Additional detail from PostgreSQL
	Hint       string    // Hint from PostgreSQL
	Query      string    // Statement that failed, truncated
	Cause      error     // Underlying error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("pgtx: %s", e.Message)
	if e.Op != "" {
		msg = fmt.Sprintf("pgtx.%s: %s", e.Op, e.Message)
	}
	if e.Table != "" {
		msg += fmt.Sprintf(" (table: %s)", e.Table)
	}
	if e.Constraint != "" {
		msg += fmt.Sprintf(" (constraint: %s)", e.Constraint)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for sentinel error matching
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Code]
	return ok && target == sentinel
}

// wrapError converts a raw error to a rich Error
func wrapError(err error, op string) error {
	if err == nil {
		return nil
	}

	// Already wrapped
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return &Error{
			Code:    CodeNotFound,
			Message: "record not found",
			Op:      op,
			Cause:   err,
		}
	}

	if errors.Is(err, sql.ErrTxDone) {
		return &Error{
			Code:    CodeTxDone,
			Message: "transaction is no longer open",
			Op:      op,
			Cause:   err,
		}
	}

	if errors.Is(err, sql.ErrConnDone) {
		return &Error{
			Code:    CodeConnectionFailed,
			Message: "database connection is closed",
			Op:      op,
			Cause:   err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{
			Code:    CodeTimeout,
			Message: "operation timed out",
			Op:      op,
			Cause:   err,
		}
	}

	// PostgreSQL specific errors
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return wrapPgError(pgErr, op)
	}

	// pgdriver reports server errors with its own type
	var drvErr pgdriver.Error
	if errors.As(err, &drvErr) {
		e := wrapPgError(&pgconn.PgError{
			Code:           drvErr.Field('C'),
			Message:        drvErr.Field('M'),
			Detail:         drvErr.Field('D'),
			Hint:           drvErr.Field('H'),
			TableName:      drvErr.Field('t'),
			ColumnName:     drvErr.Field('c'),
			ConstraintName: drvErr.Field('n'),
		}, op)
		e.Cause = err
		return e
	}

	// Generic wrapping
	return &Error{
		Code:    CodeUnknown,
		Message: err.Error(),
		Op:      op,
		Cause:   err,
	}
}

// wrapPgError converts PostgreSQL errors to rich errors
func wrapPgError(pgErr *pgconn.PgError, op string) *Error {
	e := &Error{
		Op:         op,
		Table:      pgErr.TableName,
		Column:     pgErr.ColumnName,
		Constraint: pgErr.ConstraintName,
		Detail:     pgErr.Detail,
		Hint:       pgErr.Hint,
		Cause:      pgErr,
	}

	// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
	switch pgErr.Code {
	case "23505": // unique_violation
		e.Code = CodeDuplicate
		e.Message = "duplicate key value violates unique constraint"
	case "23503": // foreign_key_violation
		e.Code = CodeForeignKey
		e.Message = "foreign key constraint violation"
	case "23502": // not_null_violation
		e.Code = CodeNotNullViolation
		e.Message = "null value in column violates not-null constraint"
	case "23514": // check_violation
		e.Code = CodeCheckViolation
		e.Message = "check constraint violation"
	case "42601", "42P01", "42703": // syntax_error, undefined_table, undefined_column
		e.Code = CodeSyntax
		e.Message = pgErr.Message
	case "40001": // serialization_failure
		e.Code = CodeSerialization
		e.Message = "serialization failure, retry transaction"
	case "40P01": // deadlock_detected
		e.Code = CodeDeadlock
		e.Message = "deadlock detected"
	case "57014": // query_canceled
		e.Code = CodeTimeout
		e.Message = "query was cancelled due to timeout"
	case "08000", "08003", "08006": // connection errors
		e.Code = CodeConnectionFailed
		e.Message = "database connection failed"
	default:
		e.Code = CodeUnknown
		e.Message = pgErr.Message
	}

	return e
}

// IsNotFound checks if error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicate checks if error is a duplicate key error
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsConnection checks if error is a connection error
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsUnavailable checks if no pooled connection could be obtained
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsTimeout checks if error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsTxDone checks if a finished transaction handle was reused
func IsTxDone(err error) bool {
	return errors.Is(err, ErrTxDone)
}

// IsRetryable checks if the error is retryable (serialization, deadlock).
// Serializable transactions surface these under write contention.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrSerialization) || errors.Is(err, ErrDeadlock)
}

// GetErrorCode extracts the error code if it's a pgtx error
func GetErrorCode(err error) (ErrorCode, bool) {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr.Code, true
	}
	return "", false
}

// GetConstraint extracts the constraint name if available
func GetConstraint(err error) (string, bool) {
	var dbErr *Error
	if errors.As(err, &dbErr) && dbErr.Constraint != "" {
		return dbErr.Constraint, true
	}
	return "", false
}
