package pgtx

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/fernandezvara/pgtx/hooks"
)

// Migration represents a single migration to execute
type Migration struct {
	ID          string // Unique identifier (e.g., "001", "20240115120000", or any string)
	Description string // Human-readable description
	SQL         string // Script executed as a batch, without bind parameters
}

// MigrationResult represents the result of running migrations
type MigrationResult struct {
	Applied   []AppliedMigration
	Skipped   []string // IDs that were already applied
	TotalTime time.Duration
}

// AppliedMigration represents a successfully applied migration
type AppliedMigration struct {
	ID          string
	Description string
	AppliedAt   time.Time
	Duration    time.Duration
	Checksum    string
}

// MigrationStatusEntry represents the status of a single migration
type MigrationStatusEntry struct {
	ID            string
	Description   string
	Checksum      string
	Applied       bool
	ChecksumMatch bool // Only relevant if Applied is true
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS _pgtx_migrations (
    id VARCHAR(255) PRIMARY KEY,
    description TEXT,
    checksum VARCHAR(64) NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    duration_ms BIGINT NOT NULL
);
`

// Migrate executes migrations in order, skipping already-applied ones.
// Running it again with the same migrations changes nothing. A migration
// whose SQL changed after being applied is rejected.
func (db *Database) Migrate(ctx context.Context, migrations []Migration) (*MigrationResult, error) {
	start := time.Now()
	result := &MigrationResult{
		Applied: make([]AppliedMigration, 0),
		Skipped: make([]string, 0),
	}

	if err := db.ensureMigrationsTable(ctx, "Migrate"); err != nil {
		return nil, err
	}

	applied, err := db.appliedChecksums(ctx)
	if err != nil {
		return nil, err
	}

	for _, m := range migrations {
		checksum := checksumSQL(m.SQL)

		if existing, ok := applied[m.ID]; ok {
			if existing != checksum {
				return nil, &Error{
					Code:    CodeUnknown,
					Message: fmt.Sprintf("migration %s has changed (checksum mismatch: expected %s, got %s)", m.ID, existing, checksum),
					Op:      "Migrate",
				}
			}
			result.Skipped = append(result.Skipped, m.ID)
			continue
		}

		migrationStart := time.Now()
		if err := db.applyMigration(ctx, m, checksum, migrationStart); err != nil {
			return nil, err
		}
		duration := time.Since(migrationStart)

		db.logger.InfoContext(ctx, "applied migration",
			slog.String("id", m.ID),
			slog.Duration("duration", duration),
		)

		result.Applied = append(result.Applied, AppliedMigration{
			ID:          m.ID,
			Description: m.Description,
			AppliedAt:   time.Now(),
			Duration:    duration,
			Checksum:    checksum,
		})
	}

	result.TotalTime = time.Since(start)
	return result, nil
}

func (db *Database) ensureMigrationsTable(ctx context.Context, op string) error {
	err := db.WithTransaction(ctx, func(tx *Tx) error {
		return tx.BatchExecute(ctx, migrationsTable)
	})
	if err != nil {
		return &Error{
			Code:    CodeUnknown,
			Message: "failed to create migrations table",
			Op:      op,
			Cause:   err,
		}
	}
	return nil
}

// appliedChecksums returns a map of migration ID to checksum
func (db *Database) appliedChecksums(ctx context.Context) (map[string]string, error) {
	var rows *Rows
	err := db.WithTransaction(ctx, func(tx *Tx) error {
		var err error
		rows, err = tx.Query(ctx, "SELECT id, checksum FROM _pgtx_migrations")
		return err
	})
	if err != nil {
		return nil, wrapError(err, "Migrate.GetApplied")
	}

	result := make(map[string]string, rows.Len())
	for _, row := range rows.Values {
		result[asString(row[0])] = asString(row[1])
	}
	return result, nil
}

// applyMigration executes a single migration and records it in the same
// transaction
func (db *Database) applyMigration(ctx context.Context, m Migration, checksum string, startTime time.Time) error {
	return db.WithTransaction(ctx, func(tx *Tx) error {
		if err := tx.BatchExecute(ctx, m.SQL); err != nil {
			return &Error{
				Code:    CodeUnknown,
				Message: fmt.Sprintf("migration %s failed: %v", m.ID, err),
				Op:      "Migrate.Apply",
				Query:   hooks.TruncateTo(m.SQL, 200),
				Cause:   err,
			}
		}

		_, err := tx.Execute(ctx, `
            INSERT INTO _pgtx_migrations (id, description, checksum, duration_ms)
            VALUES (?, ?, ?, ?)
        `, m.ID, m.Description, checksum, time.Since(startTime).Milliseconds())
		if err != nil {
			return wrapError(err, "Migrate.Record")
		}

		return nil
	})
}

// MigrationStatus returns the status of all known migrations
func (db *Database) MigrationStatus(ctx context.Context, migrations []Migration) ([]MigrationStatusEntry, error) {
	if err := db.ensureMigrationsTable(ctx, "MigrationStatus"); err != nil {
		return nil, err
	}

	applied, err := db.appliedChecksums(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]MigrationStatusEntry, 0, len(migrations))
	for _, m := range migrations {
		checksum := checksumSQL(m.SQL)
		entry := MigrationStatusEntry{
			ID:          m.ID,
			Description: m.Description,
			Checksum:    checksum,
		}

		if appliedChecksum, ok := applied[m.ID]; ok {
			entry.Applied = true
			entry.ChecksumMatch = appliedChecksum == checksum
		}

		result = append(result, entry)
	}

	return result, nil
}

// AppliedMigrations returns all migrations that have been applied, oldest first
func (db *Database) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	if err := db.ensureMigrationsTable(ctx, "AppliedMigrations"); err != nil {
		return nil, err
	}

	var rows *Rows
	err := db.WithTransaction(ctx, func(tx *Tx) error {
		var err error
		rows, err = tx.Query(ctx, `
            SELECT id, description, checksum, applied_at, duration_ms
            FROM _pgtx_migrations
            ORDER BY applied_at ASC
        `)
		return err
	})
	if err != nil {
		return nil, wrapError(err, "AppliedMigrations")
	}

	result := make([]AppliedMigration, rows.Len())
	for i, row := range rows.Values {
		appliedAt, _ := row[3].(time.Time)
		durationMs, _ := row[4].(int64)
		result[i] = AppliedMigration{
			ID:          asString(row[0]),
			Description: asString(row[1]),
			Checksum:    asString(row[2]),
			AppliedAt:   appliedAt,
			Duration:    time.Duration(durationMs) * time.Millisecond,
		}
	}

	return result, nil
}

// checksumSQL creates a SHA256 checksum of SQL content
func checksumSQL(sql string) string {
	hash := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(hash[:])
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}
