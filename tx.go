package pgtx

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace"

	"github.com/fernandezvara/pgtx/hooks"
)

// TxState is the lifecycle state of a Tx
type TxState int32

const (
	// TxOpen accepts statements
	TxOpen TxState = iota
	// TxCommitted is terminal: Commit was called, whatever its outcome
	TxCommitted
	// TxAbandoned is terminal: the Tx was closed without Commit and rolled back
	TxAbandoned
)

func (s TxState) String() string {
	switch s {
	case TxOpen:
		return "open"
	case TxCommitted:
		return "committed"
	case TxAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Tx is an exclusive handle on one in-flight serializable transaction.
//
// A Tx either ends with Commit or, when Close is reached while it is still
// open, is rolled back. Both transitions are terminal and consume the
// handle; any later statement fails with ErrTxDone. Operations on a Tx run
// one at a time in the order they were issued.
//
//	tx, err := conn.Begin(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Close() // rolls back unless committed
//
//	if _, err := tx.Execute(ctx, "INSERT INTO items (name) VALUES (?)", name); err != nil {
//	    return err
//	}
//	return tx.Commit(ctx)
type Tx struct {
	tx      bun.Tx
	conn    *Conn
	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger

	mu    sync.Mutex
	state atomic.Int32
}

// State returns the current lifecycle state
func (tx *Tx) State() TxState {
	return TxState(tx.state.Load())
}

// Execute runs a single statement and returns the number of rows affected.
// Placeholders are written as ?.
func (tx *Tx) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkOpen(ctx, "Tx.Execute"); err != nil {
		return 0, err
	}

	ctx, span := hooks.StartStatement(ctx, tx.tracer, "pgtx.Tx.Execute", query)

	var affected int64
	res, err := tx.tx.ExecContext(ctx, query, args...)
	if err == nil {
		affected, err = res.RowsAffected()
	}
	if err != nil {
		span.End(err)
		return 0, statementError(err, "Tx.Execute", query)
	}

	span.SetResult(affected)
	span.End(nil)
	return affected, nil
}

// BatchExecute runs a script of one or more statements. Scripts take no
// bind parameters and are sent to the server as-is.
func (tx *Tx) BatchExecute(ctx context.Context, script string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkOpen(ctx, "Tx.BatchExecute"); err != nil {
		return err
	}

	ctx, span := hooks.StartStatement(ctx, tx.tracer, "pgtx.Tx.BatchExecute", script)

	// The embedded sql.Tx skips placeholder formatting, so a literal ? in
	// the script is left alone. It also skips bun's hook dispatch.
	err := hooks.Exec(ctx, tx.conn.db.queryHooks, script, func(ctx context.Context) error {
		_, err := tx.tx.Tx.ExecContext(ctx, script)
		return err
	})
	span.End(err)

	return statementError(err, "Tx.BatchExecute", script)
}

// Query runs a query and returns its complete result set
func (tx *Tx) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkOpen(ctx, "Tx.Query"); err != nil {
		return nil, err
	}

	ctx, span := hooks.StartStatement(ctx, tx.tracer, "pgtx.Tx.Query", query)

	sqlRows, err := tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		span.End(err)
		return nil, statementError(err, "Tx.Query", query)
	}

	rows, err := collectRows(sqlRows)
	if err != nil {
		span.End(err)
		return nil, statementError(err, "Tx.Query", query)
	}

	span.SetRows(rows.Len())
	span.End(nil)
	return rows, nil
}

// Commit commits the transaction. The handle is consumed whatever the
// outcome: a failed commit leaves the transaction rolled back by the
// server and is counted as a rollback.
func (tx *Tx) Commit(ctx context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if err := tx.checkOpen(ctx, "Tx.Commit"); err != nil {
		return err
	}
	tx.state.Store(int32(TxCommitted))
	defer tx.conn.txDone(tx)

	_, span := hooks.StartStatement(ctx, tx.tracer, "pgtx.Tx.Commit", "COMMIT")
	err := tx.tx.Commit()
	span.End(err)

	if err != nil {
		tx.metrics.transactionFinished(EventRollback)
		tx.logger.WarnContext(ctx, "transaction commit failed, changes were rolled back",
			slog.String("error", err.Error()))
		return wrapError(err, "Tx.Commit")
	}

	tx.metrics.transactionFinished(EventCommit)
	return nil
}

// Close releases the transaction. If it was not committed it is rolled
// back. Close is idempotent and a no-op after Commit.
func (tx *Tx) Close() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if !tx.state.CompareAndSwap(int32(TxOpen), int32(TxAbandoned)) {
		return nil
	}
	defer tx.conn.txDone(tx)

	tx.logger.Warn("transaction was not committed and will be rolled back")
	tx.metrics.transactionFinished(EventRollback)

	// database/sql may already have rolled back when the Begin context ended
	if err := tx.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return wrapError(err, "Tx.Close")
	}
	return nil
}

// checkOpen rejects use of a finished handle. Reaching it is a programming
// error, so it is logged loudly as well as returned.
func (tx *Tx) checkOpen(ctx context.Context, op string) error {
	state := tx.State()
	if state == TxOpen {
		return nil
	}

	tx.logger.ErrorContext(ctx, "transaction used after it finished",
		slog.String("op", op),
		slog.String("state", state.String()),
	)
	return &Error{
		Code:    CodeTxDone,
		Message: "transaction is " + state.String(),
		Op:      op,
		Cause:   sql.ErrTxDone,
	}
}

// statementError wraps a driver error and attaches the failing statement
func statementError(err error, op, query string) error {
	err = wrapError(err, op)

	var dbErr *Error
	if errors.As(err, &dbErr) && dbErr.Query == "" {
		dbErr.Query = hooks.Truncate(query)
	}
	return err
}
