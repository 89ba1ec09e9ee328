package planstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sjafferali/stashhog-sub000/internal/catalogclient"
	"github.com/sjafferali/stashhog-sub000/internal/config"
	"github.com/sjafferali/stashhog-sub000/internal/entitycache"
	"github.com/sjafferali/stashhog-sub000/internal/httpx"
	"github.com/sjafferali/stashhog-sub000/internal/storage"
)

// newTestStore spins up a real Postgres-backed PlanStore wired to a fake
// Catalog GraphQL server the test controls via handler.
func newTestStore(t *testing.T, handler http.HandlerFunc) (*PlanStore, *storage.PlanRepository, *storage.SceneRepository, *storage.EntityRepository) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("stashhog_planstore_test"),
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

	db, err := storage.Open(ctx, config.DatabaseConfig{
		Host: host, Port: port.Int(), User: "test", Password: "test", Database: "stashhog_planstore_test",
		SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 5,
		ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	catalog := catalogclient.New(catalogclient.Config{Endpoint: server.URL, RetryPolicy: httpx.Policy{MaxAttempts: 1}}, entitycache.New(100))

	plans := storage.NewPlanRepository(db)
	scenes := storage.NewSceneRepository(db)
	entities := storage.NewEntityRepository(db)
	return New(plans, scenes, entities, catalog), plans, scenes, entities
}

// gqlHandler builds an http.HandlerFunc that replies with the given data
// payload for every GraphQL request, recording each decoded request body
// into calls.
func gqlHandler(t *testing.T, calls *[]map[string]any, respond func(query string, vars map[string]any) map[string]any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		*calls = append(*calls, req.Variables)
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": respond(req.Query, req.Variables)})
	}
}
