// Package metrics exposes Prometheus counters and histograms for the job,
// analysis, and sync subsystems (§11), grounded on the promauto.With(reg)
// registration pattern used throughout the reference pack's instrumented
// HTTP services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric this process exports. Components hold a
// *Registry rather than package-level globals so test suites can construct
// an isolated one per test.
type Registry struct {
	reg *prometheus.Registry

	JobsSubmitted  *prometheus.CounterVec
	JobsCompleted  *prometheus.CounterVec
	JobDuration    *prometheus.HistogramVec
	JobsInFlight   *prometheus.GaugeVec
	JobsStaleSwept prometheus.Counter

	ScenesAnalyzed   *prometheus.CounterVec
	DetectorsInvoked *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram

	ScenesSynced     *prometheus.CounterVec
	SyncConflicts    *prometheus.CounterVec
	SyncDuration     *prometheus.HistogramVec
	EntitiesMirrored *prometheus.CounterVec
}

// New constructs a Registry backed by a fresh prometheus.Registry plus the
// standard Go/process collectors.
func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,

		JobsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stashhog_jobs_submitted_total",
			Help: "Jobs submitted to the worker pool, by type.",
		}, []string{"job_type"}),
		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stashhog_jobs_completed_total",
			Help: "Jobs reaching a terminal state, by type and status.",
		}, []string{"job_type", "status"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stashhog_job_duration_seconds",
			Help:    "Wall-clock duration of a job from claim to terminal state.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"job_type"}),
		JobsInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "stashhog_jobs_in_flight",
			Help: "Jobs currently running in this pod's worker pool, by type.",
		}, []string{"job_type"}),
		JobsStaleSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "stashhog_jobs_stale_swept_total",
			Help: "Jobs recovered by the stale-job sweep.",
		}),

		ScenesAnalyzed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stashhog_scenes_analyzed_total",
			Help: "Scenes processed by AnalysisEngine, by outcome.",
		}, []string{"outcome"}),
		DetectorsInvoked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stashhog_detectors_invoked_total",
			Help: "Detector invocations, by detector name and outcome.",
		}, []string{"detector", "outcome"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "stashhog_analysis_batch_duration_seconds",
			Help:    "Duration of one whole AnalysisEngine.Analyze run.",
			Buckets: prometheus.DefBuckets,
		}),

		ScenesSynced: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stashhog_scenes_synced_total",
			Help: "Scenes reconciled by SyncEngine, by outcome.",
		}, []string{"outcome"}),
		SyncConflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stashhog_sync_conflicts_total",
			Help: "Scenes flagged with a sync conflict, by resolution policy.",
		}, []string{"policy"}),
		SyncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stashhog_sync_run_duration_seconds",
			Help:    "Duration of a SyncEngine run, by mode.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"mode"}),
		EntitiesMirrored: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stashhog_entities_mirrored_total",
			Help: "Performer/tag/studio rows created or updated by entity sync.",
		}, []string{"entity_type", "outcome"}),
	}
}

// Handler returns the HTTP handler the (out-of-scope) operator surface would
// mount at /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
