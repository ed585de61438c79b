/*
Package pgtx manages pooled PostgreSQL connections and serializable
transactions with strict lifecycle guarantees.

Every connection and transaction is an exclusive handle:
  - A Database owns a fixed pool of 16 physical connections
  - Connect checks one out; Conn.Close returns it
  - Conn.Begin starts a serializable transaction; only one may be open per Conn
  - Tx.Commit consumes the transaction; Tx.Close rolls it back if it was not committed

Connection and transaction counts are exported as Prometheus metrics and
every statement runs inside an OpenTelemetry span.

# Basic Usage

	cfg := pgtx.DefaultConfig(os.Getenv("DATABASE_URL")).
	    WithMetrics(registry).
	    WithMigrations(migrations...)

	db, err := pgtx.New(ctx, cfg)
	if err != nil {
	    log.Fatal(err)
	}
	defer db.Close()

# Transactions

Manual control:

	conn, err := db.Connect(ctx)
	if err != nil {
	    return err
	}
	defer conn.Close()

	tx, err := conn.Begin(ctx)
	if err != nil {
	    return err
	}
	defer tx.Close() // rolls back unless committed

	if _, err := tx.Execute(ctx, "UPDATE accounts SET balance = balance - ? WHERE id = ?", amount, id); err != nil {
	    return err
	}

	return tx.Commit(ctx)

Callback-based (commit on nil, rollback on error or panic):

	err := db.WithTransaction(ctx, func(tx *pgtx.Tx) error {
	    rows, err := tx.Query(ctx, "SELECT id, name FROM items WHERE owner = ?", owner)
	    if err != nil {
	        return err
	    }
	    ...
	    return nil
	})

Scripts without parameters:

	err := tx.BatchExecute(ctx, "CREATE TABLE a (...); CREATE TABLE b (...);")

Serializable transactions can fail with a serialization failure under
contention. RetryTransaction starts the whole transaction over when that
happens:

	err := db.RetryTransaction(ctx, 3, func(tx *pgtx.Tx) error {
	    _, err := tx.Execute(ctx, "UPDATE counters SET n = n + 1 WHERE id = ?", id)
	    return err
	})

# Error Handling

	if _, err := tx.Execute(ctx, query, args...); err != nil {
	    if pgtx.IsRetryable(err) {
	        // serialization failure: retry the whole transaction
	    }

	    var dbErr *pgtx.Error
	    if errors.As(err, &dbErr) {
	        fmt.Println(dbErr.Code)       // SERIALIZATION
	    }
	}
*/
package pgtx
