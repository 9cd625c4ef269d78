// Package metrics defines the process's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set bundles every metric the engine exports, backed by one registry.
type Set struct {
	registry *prometheus.Registry

	// Write path.
	DocumentsIngested *prometheus.CounterVec // outcome: ok|failed
	ChunksWritten     prometheus.Counter
	IngestDuration    prometheus.Histogram

	// Read path.
	RetrievalBranches *prometheus.CounterVec // namespace, outcome: ok|failed
	RetrievalDuration prometheus.Histogram
	LLMCalls          *prometheus.CounterVec // mode: single|personal|general, outcome

	// HTTP surface.
	HTTPRequests *prometheus.CounterVec // method, path, status
	HTTPDuration *prometheus.HistogramVec
}

// New creates a Set with all metrics registered on a fresh registry.
func New() *Set {
	s := &Set{
		registry: prometheus.NewRegistry(),
		DocumentsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_documents_ingested_total",
			Help: "Documents processed by the ingestion pipeline.",
		}, []string{"outcome"}),
		ChunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verity_chunks_written_total",
			Help: "Vector records upserted into the store.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_ingest_duration_seconds",
			Help:    "Wall time of ingestion batches.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		RetrievalBranches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_retrieval_branches_total",
			Help: "Per-namespace retrieval branch outcomes.",
		}, []string{"namespace", "outcome"}),
		RetrievalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "verity_retrieval_duration_seconds",
			Help:    "End-to-end retrieval latency.",
			Buckets: prometheus.DefBuckets,
		}),
		LLMCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_llm_calls_total",
			Help: "Chat model invocations by answer mode.",
		}, []string{"mode", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verity_http_requests_total",
			Help: "HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verity_http_request_duration_seconds",
			Help:    "HTTP request latency by path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		s.DocumentsIngested, s.ChunksWritten, s.IngestDuration,
		s.RetrievalBranches, s.RetrievalDuration, s.LLMCalls,
		s.HTTPRequests, s.HTTPDuration,
	)
	return s
}

// Handler serves the registry in the Prometheus text format.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Gather exposes the registry for tests.
func (s *Set) Gather() prometheus.Gatherer { return s.registry }
