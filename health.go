package pgtx

import (
	"context"
	"database/sql"
	"time"
)

// HealthStatus represents the database health status
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	PoolStats PoolStats     `json:"pool_stats"`

	// Values of the connections_active and transactions_active gauges
	ActiveConnections  int `json:"active_connections"`
	ActiveTransactions int `json:"active_transactions"`
}

// PoolStats contains connection pool statistics
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// Health performs a health check with detailed status
func (db *Database) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	err := db.Ping(ctx)

	status := HealthStatus{
		Healthy:   err == nil,
		Latency:   time.Since(start),
		PoolStats: PoolStatsFromSQL(db.Stats()),

		ActiveConnections:  int(gaugeValue(db.metrics.ConnectionsActive)),
		ActiveTransactions: int(gaugeValue(db.metrics.TransactionsActive)),
	}
	if err != nil {
		status.Error = err.Error()
	}

	return status
}

// IsHealthy returns true if the database is reachable
func (db *Database) IsHealthy(ctx context.Context) bool {
	return db.Ping(ctx) == nil
}

// PoolStatsFromSQL converts sql.DBStats to PoolStats
func PoolStatsFromSQL(stats sql.DBStats) PoolStats {
	return PoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}
}
