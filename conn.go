package pgtx

import (
	"context"
	"database/sql"
	"sync"

	"github.com/uptrace/bun"
)

// Conn is an exclusive handle on one pooled physical connection. At most
// one transaction can be open on it at a time. Close must be called on
// every path, typically with defer, to return the connection to the pool.
type Conn struct {
	conn bun.Conn
	db   *Database

	mu     sync.Mutex
	tx     *Tx
	closed bool
}

// Begin starts a serializable, read-write, non-deferrable transaction.
// Beginning a second transaction while one is open fails with ErrTxActive.
func (c *Conn) Begin(ctx context.Context) (*Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, &Error{
			Code:    CodeConnClosed,
			Message: "connection has been released",
			Op:      "Conn.Begin",
		}
	}
	if c.tx != nil && c.tx.State() == TxOpen {
		return nil, &Error{
			Code:    CodeTxActive,
			Message: "connection already has an open transaction",
			Op:      "Conn.Begin",
		}
	}

	c.db.logger.DebugContext(ctx, "starting transaction")

	btx, err := c.conn.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
		ReadOnly:  false,
	})
	if err != nil {
		return nil, &Error{
			Code:    CodeTxBegin,
			Message: "failed to start transaction",
			Op:      "Conn.Begin",
			Cause:   err,
		}
	}

	c.db.metrics.transactionStarted()

	c.tx = &Tx{
		tx:      btx,
		conn:    c,
		metrics: c.db.metrics,
		tracer:  c.db.tracer,
		logger:  c.db.logger,
	}
	return c.tx, nil
}

// Close releases the connection back to the pool. A transaction still
// open on it is rolled back first. Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()

	if tx != nil {
		_ = tx.Close()
	}

	c.db.metrics.connectionReleased()
	c.db.logger.Debug("returning database connection")

	if err := c.conn.Close(); err != nil {
		return wrapError(err, "Conn.Close")
	}
	return nil
}

// txDone detaches a finished transaction from the connection
func (c *Conn) txDone(tx *Tx) {
	c.mu.Lock()
	if c.tx == tx {
		c.tx = nil
	}
	c.mu.Unlock()
}
