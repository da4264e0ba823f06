// Package metrics exposes Prometheus collectors for the HTTP server and the
// dosing and record-keeping services.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bolus",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bolus",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method"},
	)

	dosesComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bolus",
			Subsystem: "dose",
			Name:      "computed_total",
			Help:      "Dose calculations by advisory.",
		},
		[]string{"advisory"},
	)

	storeWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bolus",
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Record store mutations by operation and outcome.",
		},
		[]string{"op", "success"},
	)

	restoreSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bolus",
			Subsystem: "store",
			Name:      "backup_rows_skipped_total",
			Help:      "Malformed backup rows skipped during restore or import.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		dosesComputed,
		storeWrites,
		restoreSkipped,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordDose counts a dose calculation.
func RecordDose(advisory string) {
	dosesComputed.WithLabelValues(advisory).Inc()
}

// RecordStoreWrite counts a store mutation.
func RecordStoreWrite(op string, err error) {
	storeWrites.WithLabelValues(op, strconv.FormatBool(err == nil)).Inc()
}

// RecordSkippedRows counts malformed backup rows.
func RecordSkippedRows(n int) {
	restoreSkipped.Add(float64(n))
}

// ObserveRequest records one handled HTTP request.
func ObserveRequest(method string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}
