// Package telemetry exposes Prometheus counters and gauges for the
// poller, executor, and finalizer behind a singleton registry.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	UnitsClaimed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "export_units_claimed_total", Help: "Units successfully claimed by a poller"})
	UnitsSucceeded    = prometheus.NewCounter(prometheus.CounterOpts{Name: "export_units_succeeded_total", Help: "Units that reached SUCCEEDED"})
	UnitsReused       = prometheus.NewCounter(prometheus.CounterOpts{Name: "export_units_reused_total", Help: "Units satisfied via artifact reuse"})
	UnitsGenerated    = prometheus.NewCounter(prometheus.CounterOpts{Name: "export_units_generated_total", Help: "Units satisfied via fresh generation"})
	UnitsRetried      = prometheus.NewCounter(prometheus.CounterOpts{Name: "export_units_retried_total", Help: "Units scheduled for retry"})
	UnitsDeadLettered = prometheus.NewCounter(prometheus.CounterOpts{Name: "export_units_dead_lettered_total", Help: "Units moved to DLQ"})
	JobsCompleted     = prometheus.NewCounter(prometheus.CounterOpts{Name: "export_jobs_completed_total", Help: "Jobs reaching COMPLETED"})
	JobsFailed        = prometheus.NewCounter(prometheus.CounterOpts{Name: "export_jobs_failed_total", Help: "Jobs reaching FAILED"})
	StoreErrors       = prometheus.NewCounter(prometheus.CounterOpts{Name: "export_store_errors_total", Help: "Store calls that returned an error to the poller"})
	InFlightGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "export_units_inflight", Help: "Units currently leased and executing"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "export_submissions_rate_limited_total", Help: "Job submissions rejected by the rate limiter"})
	SubmissionsTotal  = prometheus.NewCounter(prometheus.CounterOpts{Name: "export_submissions_total", Help: "Job submissions accepted"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			UnitsClaimed,
			UnitsSucceeded,
			UnitsReused,
			UnitsGenerated,
			UnitsRetried,
			UnitsDeadLettered,
			JobsCompleted,
			JobsFailed,
			StoreErrors,
			InFlightGauge,
			RateLimitRejects,
			SubmissionsTotal,
		)
	})
	return promhttp.Handler()
}
