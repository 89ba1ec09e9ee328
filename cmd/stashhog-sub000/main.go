// Command stashhog-sub000 is the composition root: it loads configuration,
// wires every component (§13), and runs the worker pool, scheduler, and
// metrics server until signalled to stop.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sjafferali/stashhog-sub000/internal/aiclient"
	"github.com/sjafferali/stashhog-sub000/internal/analysis"
	"github.com/sjafferali/stashhog-sub000/internal/catalogclient"
	"github.com/sjafferali/stashhog-sub000/internal/config"
	"github.com/sjafferali/stashhog-sub000/internal/detectors"
	"github.com/sjafferali/stashhog-sub000/internal/entitycache"
	"github.com/sjafferali/stashhog-sub000/internal/jobs"
	"github.com/sjafferali/stashhog-sub000/internal/metrics"
	"github.com/sjafferali/stashhog-sub000/internal/planstore"
	"github.com/sjafferali/stashhog-sub000/internal/scheduler"
	"github.com/sjafferali/stashhog-sub000/internal/storage"
	"github.com/sjafferali/stashhog-sub000/internal/sync"
	"github.com/sjafferali/stashhog-sub000/internal/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("close database", "error", err)
		}
	}()

	scenes := storage.NewSceneRepository(db)
	entities := storage.NewEntityRepository(db)
	plans := storage.NewPlanRepository(db)
	jobRepo := storage.NewJobRepository(db)
	history := storage.NewSyncHistoryRepository(db)

	cache := entitycache.New(10000)
	catalog := catalogclient.New(catalogclient.Config{
		Endpoint: cfg.Catalog.Endpoint,
		APIKey:   cfg.Catalog.APIKey,
	}, cache)

	var ai *aiclient.Client
	if cfg.AI.Endpoint != "" {
		ai = aiclient.New(aiclient.Config{Endpoint: cfg.AI.Endpoint, APIKey: cfg.AI.APIKey, Model: cfg.AI.Model})
	}
	var videoDetector *detectors.VideoTagDetector
	if cfg.Video.Endpoint != "" {
		videoDetector = detectors.NewVideoTagDetector(&http.Client{Timeout: cfg.Video.ServerTimeout}, cfg.Video.Endpoint)
	}

	studioDetector, err := detectors.NewStudioDetector(nil)
	if err != nil {
		log.Fatalf("construct studio detector: %v", err)
	}

	metricsReg := metrics.New()

	planStore := planstore.New(plans, scenes, entities, catalog)
	analysisEngine := analysis.New(analysis.Config{
		Cache:             cache,
		Scenes:            scenes,
		Entities:          entities,
		Plans:             planStore,
		AI:                ai,
		StudioDetector:    studioDetector,
		PerformerDetector: detectors.NewPerformerDetector(),
		TagDetector:       detectors.NewTagDetector(nil),
		VideoDetector:     videoDetector,
		VideoTagConfig: analysis.VideoTagConfig{
			FrameInterval: cfg.Video.FrameInterval,
			Threshold:     cfg.Video.Threshold,
		},
		Metrics: metricsReg,
	})
	syncEngine := sync.New(sync.Config{Catalog: catalog, Scenes: scenes, Entities: entities, History: history, Metrics: metricsReg})

	podID := getEnv("POD_ID", "local")
	disp := &dispatcher{sync: syncEngine, analysis: analysisEngine, plans: planStore, metrics: metricsReg, defaultAnalysis: cfg.Analysis}

	workerCfg := jobs.WorkerConfig{
		PollInterval:       2 * time.Second,
		PollIntervalJitter: time.Second,
		HeartbeatInterval:  15 * time.Second,
		JobTimeout:         2 * time.Hour,
		MaxConcurrentJobs:  cfg.Queue.WorkerCount,
	}
	pool := jobs.NewWorkerPool(podID, jobRepo, disp, workerCfg, cfg.Queue.WorkerCount)
	manager := jobs.NewManager(jobRepo, pool, metricsReg)
	disp.jobs = manager

	sched, err := scheduler.New(cfg.Scheduler, manager)
	if err != nil {
		log.Fatalf("construct scheduler: %v", err)
	}

	manager.Start(ctx)
	sched.Start(ctx)
	slog.Info("stashhog-sub000 started", "version", version.Full(), "pod_id", podID, "workers", cfg.Queue.WorkerCount)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsReg.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpAddr := ":" + getEnv("HTTP_PORT", "8080")
	server := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server exited", "error", err)
		}
	}()
	slog.Info("metrics/health server listening", "addr", httpAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown", "error", err)
	}
	sched.Stop()
	manager.Stop()
}
