// Package metrics exposes Prometheus instrumentation for the engine loop:
// order throughput, match cycle latency, and retry/failure counts.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OrdersProcessed counts orders that completed a match cycle and
	// committed successfully.
	OrdersProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "matching_engine",
		Name:      "orders_processed_total",
		Help:      "Orders that completed a match cycle and committed.",
	})

	// TradesExecuted counts individual Transaction rows written by the
	// committer.
	TradesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "matching_engine",
		Name:      "trades_executed_total",
		Help:      "Transactions written by the committer.",
	})

	// EngineFailures counts orders that exhausted retries or hit a
	// non-retryable error.
	EngineFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "matching_engine",
		Name:      "engine_failures_total",
		Help:      "Orders that failed permanently or exhausted retry budget.",
	})

	// MatchCycleDuration observes wall-clock time of one ProcessOrder call,
	// including retries.
	MatchCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "matching_engine",
		Name:      "match_cycle_duration_seconds",
		Help:      "Time spent processing one order end to end, including retries.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Serve starts the /metrics HTTP endpoint on addr; it blocks, so callers
// run it in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
