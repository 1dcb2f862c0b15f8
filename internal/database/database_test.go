package database

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-alert-service/internal/config"
)

// mockDBTX pins the DBTX surface at compile time; repositories and pgxmock
// both program against it.
type mockDBTX struct{}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockDBTX) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

var _ DBTX = (*mockDBTX)(nil)

func TestDatabaseConfigDSN(t *testing.T) {
	t.Run("includes all connection parameters", func(t *testing.T) {
		cfg := &config.DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "citewatch",
			Password:       "secret",
			Name:           "citation_alerts",
			SSLMode:        "disable",
			ConnectTimeout: 10 * time.Second,
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "postgres://")
		assert.Contains(t, dsn, "localhost:5432")
		assert.Contains(t, dsn, "citation_alerts")
		assert.Contains(t, dsn, "sslmode=disable")
		assert.Contains(t, dsn, "connect_timeout=10")
	})

	t.Run("escapes credentials", func(t *testing.T) {
		cfg := &config.DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "user@domain",
			Password: "pass/word",
			Name:     "testdb",
			SSLMode:  "require",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "user%40domain")
		assert.Contains(t, dsn, "pass%2Fword")
	})
}

func TestHealthStatusJSON(t *testing.T) {
	t.Run("error included when set", func(t *testing.T) {
		hs := HealthStatus{Status: "unhealthy", Error: "connection refused", MaxConns: 50}
		data, err := json.Marshal(hs)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"error":"connection refused"`)
	})

	t.Run("error omitted when empty", func(t *testing.T) {
		hs := HealthStatus{Status: "healthy", MaxConns: 50}
		data, err := json.Marshal(hs)
		require.NoError(t, err)
		assert.NotContains(t, string(data), `"error"`)
		assert.Contains(t, string(data), `"status":"healthy"`)
	})
}

func TestCycleLockKeyIsStable(t *testing.T) {
	// The CLI runner and the HTTP trigger endpoint coordinate through this
	// value; changing it would let mixed deployments run cycles in parallel.
	assert.Equal(t, int64(0x43495445), CycleLockKey)
}

// setupTestDB connects to the Postgres instance configured through the
// CITEWATCH_TEST_DB_* environment variables, or returns nil when no database
// is reachable so callers can skip.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	port := 5432
	if v := os.Getenv("CITEWATCH_TEST_DB_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		require.NoError(t, err)
		port = p
	}
	cfg := &config.DatabaseConfig{
		Host:           envOr("CITEWATCH_TEST_DB_HOST", "localhost"),
		Port:           port,
		User:           envOr("CITEWATCH_TEST_DB_USER", "citewatch"),
		Password:       envOr("CITEWATCH_TEST_DB_PASSWORD", "citewatch"),
		Name:           envOr("CITEWATCH_TEST_DB_NAME", "citation_alerts_test"),
		SSLMode:           "disable",
		MaxConns:          5,
		MinConns:          1,
		HealthCheckPeriod: 30 * time.Second,
		ConnectTimeout:    2 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := New(ctx, cfg, zerolog.Nop())
	if err != nil {
		return nil
	}
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestDBHealth(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := setupTestDB(t)
	if db == nil {
		t.Skip("skipping: no test database reachable")
	}
	defer db.Close()

	health := db.Health(context.Background())
	assert.Equal(t, "healthy", health.Status)
	assert.Empty(t, health.Error)
	assert.Positive(t, health.MaxConns)
}

func TestAdvisoryLockRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := setupTestDB(t)
	if db == nil {
		t.Skip("skipping: no test database reachable")
	}
	defer db.Close()

	ctx := context.Background()
	const key int64 = 0x7454455354 // distinct from CycleLockKey

	acquired, err := db.AcquireAdvisoryLock(ctx, key)
	require.NoError(t, err)
	require.True(t, acquired)

	t.Run("re-acquiring a held key fails", func(t *testing.T) {
		again, err := db.AcquireAdvisoryLock(ctx, key)
		require.NoError(t, err)
		assert.False(t, again)
	})

	t.Run("a second session is locked out", func(t *testing.T) {
		other := setupTestDB(t)
		require.NotNil(t, other)
		defer other.Close()

		got, err := other.AcquireAdvisoryLock(ctx, key)
		require.NoError(t, err)
		assert.False(t, got)
	})

	require.NoError(t, db.ReleaseAdvisoryLock(ctx, key))

	t.Run("acquirable again after release", func(t *testing.T) {
		got, err := db.AcquireAdvisoryLock(ctx, key)
		require.NoError(t, err)
		assert.True(t, got)
		require.NoError(t, db.ReleaseAdvisoryLock(ctx, key))
	})
}

func TestReleaseAdvisoryLockWithoutHoldIsNoop(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	db := setupTestDB(t)
	if db == nil {
		t.Skip("skipping: no test database reachable")
	}
	defer db.Close()

	assert.NoError(t, db.ReleaseAdvisoryLock(context.Background(), 0x7454455355))
}
