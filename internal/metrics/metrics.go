// Package metrics holds the collector's Prometheus instrumentation and the
// optional /metrics listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netwatch_events_ingested_total",
			Help: "Events appended to a source buffer",
		},
		[]string{"source"},
	)

	BatchesFlushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netwatch_batches_flushed_total",
			Help: "Batches durably loaded into the store",
		},
		[]string{"source"},
	)

	FlushFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netwatch_flush_failures_total",
			Help: "Individual flush attempts that failed",
		},
		[]string{"source"},
	)

	BatchesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netwatch_batches_dropped_total",
			Help: "Batches dropped after exhausted retries",
		},
		[]string{"source"},
	)

	BufferDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netwatch_buffer_depth",
			Help: "Events currently buffered per source",
		},
		[]string{"source"},
	)

	ProfilesMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "netwatch_profiles_merged_total",
			Help: "Device profile upserts applied",
		},
	)
)

// Serve registers all collectors and starts the /metrics endpoint.
func Serve(addr string) {
	prometheus.MustRegister(
		EventsIngested, BatchesFlushed, FlushFailures,
		BatchesDropped, BufferDepth, ProfilesMerged,
	)
	http.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(addr, nil)
}
