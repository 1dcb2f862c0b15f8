// Package database manages the Postgres connection pool backing the alert
// store, plus the advisory lock that serializes alert cycles.
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/helixir/citation-alert-service/internal/config"
)

// CycleLockKey is the advisory lock key serializing alert cycles. The CLI
// runner and the HTTP trigger endpoint both take it: two concurrent cycles
// against the same database would double-deliver alerts.
const CycleLockKey int64 = 0x43495445

// healthCheckTimeout bounds the ping inside Health.
const healthCheckTimeout = 5 * time.Second

// HealthStatus is the database portion of the health probes.
type HealthStatus struct {
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	TotalConns    int32  `json:"total_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	IdleConns     int32  `json:"idle_conns"`
	MaxConns      int32  `json:"max_conns"`
}

// DBTX is the query surface the repositories depend on. *DB, pgx.Tx, and
// pgxmock pools all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DB wraps the pgx connection pool. Advisory locks are pinned to dedicated
// connections: pg advisory locks are session-scoped, so acquiring and
// releasing through pooled queries could hit different sessions.
type DB struct {
	pool   *pgxpool.Pool
	config *config.DatabaseConfig
	logger zerolog.Logger

	mu        sync.Mutex
	lockConns map[int64]*pgxpool.Conn
}

var _ DBTX = (*DB)(nil)

// New opens a connection pool against the configured database and verifies
// it with a ping.
func New(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Int32("max_conns", cfg.MaxConns).
		Msg("database connection pool established")

	return &DB{
		pool:      pool,
		config:    cfg,
		logger:    logger,
		lockConns: make(map[int64]*pgxpool.Conn),
	}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close releases any held advisory-lock connections and closes the pool.
func (db *DB) Close() {
	db.mu.Lock()
	for key, conn := range db.lockConns {
		conn.Release()
		delete(db.lockConns, key)
	}
	db.mu.Unlock()

	if db.pool != nil {
		db.pool.Close()
		db.logger.Info().Msg("database connection pool closed")
	}
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Health reports pool statistics and whether the database answers a ping.
func (db *DB) Health(ctx context.Context) HealthStatus {
	stat := db.pool.Stat()
	health := HealthStatus{
		TotalConns:    stat.TotalConns(),
		AcquiredConns: stat.AcquiredConns(),
		IdleConns:     stat.IdleConns(),
		MaxConns:      stat.MaxConns(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := db.pool.Ping(pingCtx); err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
		return health
	}
	health.Status = "healthy"
	return health
}

// Exec executes a statement without returning rows.
func (db *DB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

// Query executes a query that returns rows.
func (db *DB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

// QueryRow executes a query expected to return at most one row.
func (db *DB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

// AcquireAdvisoryLock attempts to take the advisory lock with the given key.
// It returns false without error when another session holds the lock. The
// lock is held on a connection checked out of the pool until
// ReleaseAdvisoryLock or Close.
func (db *DB) AcquireAdvisoryLock(ctx context.Context, key int64) (bool, error) {
	db.mu.Lock()
	if _, held := db.lockConns[key]; held {
		db.mu.Unlock()
		return false, nil
	}
	db.mu.Unlock()

	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection for advisory lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock %d: %w", key, err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	db.mu.Lock()
	db.lockConns[key] = conn
	db.mu.Unlock()
	return true, nil
}

// ReleaseAdvisoryLock releases a lock taken by AcquireAdvisoryLock and
// returns its connection to the pool. Releasing a key that is not held is a
// no-op.
func (db *DB) ReleaseAdvisoryLock(ctx context.Context, key int64) error {
	db.mu.Lock()
	conn, held := db.lockConns[key]
	delete(db.lockConns, key)
	db.mu.Unlock()

	if !held {
		return nil
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", key); err != nil {
		return fmt.Errorf("release advisory lock %d: %w", key, err)
	}
	return nil
}
