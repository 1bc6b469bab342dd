/*
Package metrics provides Prometheus metrics collection and exposition for pm.

Metrics are grouped by the component that emits them: the content store
(objects, bytes, link method, GC reclaims), the resolver (resolution
duration, decision/conflict counters, satisfiable/unsat outcomes), the
install pipeline (download duration/bytes, per-stage duration, install
outcomes), the atomic transition (commit duration, rollbacks, GC'd
states), and the guard (verification duration by scope, discrepancies by
kind, heal outcomes, quarantined objects).

# Usage

	http.Handle("/metrics", metrics.Handler())

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDuration(metrics.CommitDuration)

All metrics are registered once via init() and are safe for concurrent
use from multiple goroutines, matching the rest of the pipeline's
concurrency model (§5): a download goroutine, an extraction goroutine,
and the committer can all observe metrics without external locking.

See also pkg/log for structured logging and pkg/events for the typed
progress/error event stream consumed by callers that want more than a
numeric counter.
*/
package metrics
