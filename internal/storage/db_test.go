package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sjafferali/stashhog-sub000/internal/config"
)

// newTestDB starts a disposable Postgres container, opens a pool against it,
// and applies the embedded migrations.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("stashhog_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "test",
		Password:        "test",
		Database:        "stashhog_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}

	db, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestOpen_RunsMigrationsAndConnects(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	health, err := db.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, "healthy", health.Status)

	var tableCount int
	row := db.Conn().QueryRowContext(ctx, `
		SELECT count(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'scenes'
	`)
	require.NoError(t, row.Scan(&tableCount))
	require.Equal(t, 1, tableCount)
}
