package pgtx

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/fernandezvara/pgtx/hooks"
)

const tracerName = "github.com/fernandezvara/pgtx"

// Database owns the connection pool and the metrics shared by every
// connection and transaction checked out of it. It is the only entry point
// for obtaining connections.
type Database struct {
	db      *bun.DB
	config  Config
	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger

	// queryHooks are also run by hand for scripts that bypass bun
	queryHooks []bun.QueryHook
}

// New builds the connection pool, verifies that a connection can be
// obtained and runs the configured migrations. The returned Database is
// ready for transactional traffic; any error means it must not be used.
func New(ctx context.Context, cfg Config) (*Database, error) {
	cfg.applyDefaults()

	if cfg.URL == "" {
		return nil, &Error{
			Code:    CodeInvalidConfig,
			Message: "database URL is required",
			Op:      "New",
		}
	}

	if _, err := pgconn.ParseConfig(cfg.URL); err != nil {
		return nil, &Error{
			Code:    CodeInvalidConfig,
			Message: "invalid database URL",
			Op:      "New",
			Cause:   err,
		}
	}

	connector, err := newConnector(cfg)
	if err != nil {
		return nil, err
	}

	return open(ctx, sql.OpenDB(connector), cfg)
}

// newConnector builds the pgdriver connector. pgdriver panics on DSNs it
// cannot parse, so that case is turned into an error here.
func newConnector(cfg Config) (connector *pgdriver.Connector, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &Error{
				Code:    CodeInvalidConfig,
				Message: fmt.Sprintf("invalid database URL: %v", p),
				Op:      "New",
			}
		}
	}()

	return pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.URL),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
		pgdriver.WithReadTimeout(cfg.ReadTimeout),
		pgdriver.WithWriteTimeout(cfg.WriteTimeout),
	), nil
}

// open finishes construction on top of an already opened sql.DB.
// cfg must have its defaults applied.
func open(ctx context.Context, sqlDB *sql.DB, cfg Config) (*Database, error) {
	// The pool never grows or shrinks past its fixed capacity
	sqlDB.SetMaxOpenConns(PoolSize)
	sqlDB.SetMaxIdleConns(PoolSize)

	bunDB := bun.NewDB(sqlDB, pgdialect.New())

	metrics, err := NewMetrics(cfg.MetricsNamespace, cfg.MetricsRegistry)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pgtx: failed to register metrics: %w", err)
	}

	var queryHooks []bun.QueryHook
	if cfg.LogQueries || cfg.LogSlowQueries > 0 {
		queryHooks = append(queryHooks, hooks.NewLoggerHook(cfg.Logger, cfg.LogQueries, cfg.LogSlowQueries))
	}
	if cfg.MetricsRegistry != nil {
		hook, err := hooks.NewMetricsHook(cfg.MetricsNamespace, cfg.MetricsRegistry)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("pgtx: failed to create metrics hook: %w", err)
		}
		queryHooks = append(queryHooks, hook)
	}
	for _, hook := range queryHooks {
		bunDB.AddQueryHook(hook)
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	db := &Database{
		db:      bunDB,
		config:  cfg,
		metrics: metrics,
		tracer:  tracer,
		logger:  cfg.Logger,

		queryHooks: queryHooks,
	}

	if err := db.verify(ctx); err != nil {
		_ = bunDB.Close()
		return nil, err
	}

	if len(cfg.Migrations) > 0 {
		result, err := db.Migrate(ctx, cfg.Migrations)
		if err != nil {
			_ = bunDB.Close()
			return nil, err
		}
		db.logger.InfoContext(ctx, "database migrations complete",
			slog.Int("applied", len(result.Applied)),
			slog.Int("skipped", len(result.Skipped)),
			slog.Duration("duration", result.TotalTime),
		)
	}

	db.logger.DebugContext(ctx, "built database connection pool", slog.Int("size", PoolSize))

	return db, nil
}

// verify acquires and releases one physical connection. It bypasses
// Connect so that the validation connection is not counted.
func (db *Database) verify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, db.config.DialTimeout)
	defer cancel()

	conn, err := db.db.Conn(ctx)
	if err == nil {
		err = conn.PingContext(ctx)
		_ = conn.Close()
	}
	if err != nil {
		return &Error{
			Code:    CodeConnectionFailed,
			Message: "failed to connect to database",
			Op:      "New",
			Cause:   err,
		}
	}
	return nil
}

// Connect checks out a physical connection from the pool, waiting at most
// Config.AcquireTimeout. The caller owns the returned Conn and must Close it.
// Failure is not retried.
func (db *Database) Connect(ctx context.Context) (*Conn, error) {
	db.logger.DebugContext(ctx, "getting database connection")

	acquireCtx, cancel := context.WithTimeout(ctx, db.config.AcquireTimeout)
	defer cancel()

	raw, err := db.db.Conn(acquireCtx)
	if err != nil {
		db.logger.ErrorContext(ctx, "failed to get database connection", slog.String("error", err.Error()))
		return nil, &Error{
			Code:    CodeUnavailable,
			Message: "failed to get database connection",
			Op:      "Connect",
			Cause:   err,
		}
	}

	db.metrics.connectionAcquired()

	return &Conn{conn: raw, db: db}, nil
}

// WithConnection checks out a connection, runs fn and always releases it
func (db *Database) WithConnection(ctx context.Context, fn func(conn *Conn) error) error {
	conn, err := db.Connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return fn(conn)
}

// WithTransaction runs fn in a serializable transaction on a fresh
// connection. The transaction is committed when fn returns nil and rolled
// back when fn returns an error or panics.
func (db *Database) WithTransaction(ctx context.Context, fn func(tx *Tx) error) error {
	return db.WithConnection(ctx, func(conn *Conn) error {
		tx, err := conn.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Close()

		if err := fn(tx); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}

// Close closes the pool. Connections still checked out are closed when
// they are released.
func (db *Database) Close() error {
	return db.db.Close()
}

// Ping verifies the database connection is alive
func (db *Database) Ping(ctx context.Context) error {
	if err := db.db.PingContext(ctx); err != nil {
		return wrapError(err, "Ping")
	}
	return nil
}

// Stats returns connection pool statistics
func (db *Database) Stats() sql.DBStats {
	return db.db.Stats()
}

// Metrics returns the instruments shared by all connections and transactions
func (db *Database) Metrics() *Metrics {
	return db.metrics
}

// Config returns the current configuration
func (db *Database) Config() Config {
	return db.config
}
