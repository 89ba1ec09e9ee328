package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("CATALOG_ENDPOINT", "http://catalog.local/graphql")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 5, cfg.Queue.WorkerCount)
	assert.Equal(t, 0.7, cfg.Analysis.ConfidenceThreshold)
	assert.Equal(t, 15, cfg.Analysis.BatchSize)
}

func TestLoad_IncrementalSyncMinutesClampedToFive(t *testing.T) {
	t.Setenv("CATALOG_ENDPOINT", "http://catalog.local/graphql")
	t.Setenv("SCHEDULER_INCREMENTAL_MINUTES", "1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Scheduler.IncrementalSyncMinutes)
}

func TestLoad_MissingCatalogEndpointFails(t *testing.T) {
	t.Setenv("CATALOG_ENDPOINT", "")
	_, err := Load()
	require.Error(t, err)
}

func TestDatabaseConfig_Validate_IdleExceedsOpen(t *testing.T) {
	cfg := DatabaseConfig{Database: "x", MaxOpenConns: 5, MaxIdleConns: 10}
	assert.Error(t, cfg.Validate())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", cfg.DSN())
}
