package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Content store metrics
	StoreObjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pm_store_objects_total",
			Help: "Total number of content objects in the store",
		},
	)

	StoreBytesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pm_store_bytes_total",
			Help: "Total bytes of content stored (deduplicated)",
		},
	)

	StoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_store_writes_total",
			Help: "Total number of store writes by outcome (new, deduplicated, error)",
		},
		[]string{"outcome"},
	)

	StoreLinkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pm_store_link_duration_seconds",
			Help:    "Time to materialise an object into a destination path, by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"}, // reflink, hardlink, copy
	)

	StoreGCReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pm_store_gc_reclaimed_total",
			Help: "Total number of store objects reclaimed by garbage collection",
		},
	)

	// Resolver metrics
	ResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pm_resolution_duration_seconds",
			Help:    "Time taken to resolve a set of requested package specs",
			Buckets: prometheus.DefBuckets,
		},
	)

	ResolutionDecisionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pm_resolution_decisions_total",
			Help: "Total number of SAT decision-variable assignments made across all resolutions",
		},
	)

	ResolutionConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pm_resolution_conflicts_total",
			Help: "Total number of CDCL conflicts encountered across all resolutions",
		},
	)

	ResolutionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_resolution_outcomes_total",
			Help: "Total number of resolutions by outcome (solved, cycle, unsat, error)",
		},
		[]string{"outcome"},
	)

	// Install pipeline metrics
	DownloadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pm_download_duration_seconds",
			Help:    "Time taken to download a single package archive",
			Buckets: prometheus.DefBuckets,
		},
	)

	DownloadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pm_download_bytes_total",
			Help: "Total bytes downloaded across all archives",
		},
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pm_pipeline_stage_duration_seconds",
			Help:    "Time taken per pipeline stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"}, // download, validate, extract, stage, commit
	)

	InstallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_installs_total",
			Help: "Total number of packages installed by outcome",
		},
		[]string{"outcome"},
	)

	// Atomic transition metrics
	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pm_commit_duration_seconds",
			Help:    "Time taken for the atomic state commit protocol",
			Buckets: prometheus.DefBuckets,
		},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pm_rollbacks_total",
			Help: "Total number of state rollbacks performed",
		},
	)

	GCStatesReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pm_gc_states_reclaimed_total",
			Help: "Total number of states removed by retention garbage collection",
		},
	)

	// Guard metrics
	VerificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pm_verification_duration_seconds",
			Help:    "Time taken for a verification pass, by scope",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scope"}, // state, store
	)

	DiscrepanciesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_discrepancies_total",
			Help: "Total number of verification discrepancies found by kind",
		},
		[]string{"kind"}, // missing_file, corrupted_file, type_mismatch, missing_venv, orphaned_file
	)

	HealsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pm_heals_total",
			Help: "Total number of heal attempts by outcome",
		},
		[]string{"outcome"}, // healed, failed
	)

	QuarantinedObjectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pm_quarantined_objects_total",
			Help: "Total number of store objects moved to quarantine",
		},
	)
)

func init() {
	prometheus.MustRegister(StoreObjectsTotal)
	prometheus.MustRegister(StoreBytesTotal)
	prometheus.MustRegister(StoreWritesTotal)
	prometheus.MustRegister(StoreLinkDuration)
	prometheus.MustRegister(StoreGCReclaimedTotal)

	prometheus.MustRegister(ResolutionDuration)
	prometheus.MustRegister(ResolutionDecisionsTotal)
	prometheus.MustRegister(ResolutionConflictsTotal)
	prometheus.MustRegister(ResolutionOutcomesTotal)

	prometheus.MustRegister(DownloadDuration)
	prometheus.MustRegister(DownloadBytesTotal)
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(InstallsTotal)

	prometheus.MustRegister(CommitDuration)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(GCStatesReclaimedTotal)

	prometheus.MustRegister(VerificationDuration)
	prometheus.MustRegister(DiscrepanciesTotal)
	prometheus.MustRegister(HealsTotal)
	prometheus.MustRegister(QuarantinedObjectsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
