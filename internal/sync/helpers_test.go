package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sjafferali/stashhog-sub000/internal/catalogclient"
	"github.com/sjafferali/stashhog-sub000/internal/config"
	"github.com/sjafferali/stashhog-sub000/internal/storage"
)

// fakeCatalog is a scripted GraphQL server dispatching on query substrings,
// the same pattern used against CatalogClient's own tests.
type fakeCatalog struct {
	scenes     []map[string]any
	performers []map[string]any
	tags       []map[string]any
	studios    []map[string]any
}

func (f *fakeCatalog) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.WriteHeader(http.StatusOK)

		switch {
		case strings.Contains(req.Query, "allPerformers"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"allPerformers": f.performers},
			})
		case strings.Contains(req.Query, "allTags"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"allTags": f.tags},
			})
		case strings.Contains(req.Query, "allStudios"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"allStudios": f.studios},
			})
		case strings.Contains(req.Query, "findScene(id:"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"findScene": firstOrNil(f.scenes)},
			})
		default: // findScenes / GetScenesSince
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"findScenes": map[string]any{
					"count":  len(f.scenes),
					"scenes": f.scenes,
				}},
			})
		}
	}
}

func firstOrNil(scenes []map[string]any) map[string]any {
	if len(scenes) == 0 {
		return nil
	}
	return scenes[0]
}

func newTestCatalogClient(t *testing.T, fc *fakeCatalog) *catalogclient.Client {
	t.Helper()
	server := httptest.NewServer(fc.handler())
	t.Cleanup(server.Close)
	return catalogclient.New(catalogclient.Config{Endpoint: server.URL}, nil)
}

// newTestStores spins up a real Postgres testcontainer and returns the
// repositories Engine needs, mirroring the analysis package's own
// testcontainer fixture.
func newTestStores(t *testing.T) (*storage.SceneRepository, *storage.EntityRepository, *storage.SyncHistoryRepository) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("stashhog_sync_test"),
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
		Host: host, Port: port.Int(), User: "test", Password: "test", Database: "stashhog_sync_test",
		SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 5,
		ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return storage.NewSceneRepository(db), storage.NewEntityRepository(db), storage.NewSyncHistoryRepository(db)
}
