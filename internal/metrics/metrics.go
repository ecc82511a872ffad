// Package metrics provides Prometheus metrics for the retrieval pipeline
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Cache lookup results.
const (
	CacheHitMemory = "memory"
	CacheHitDisk   = "disk"
	CacheMiss      = "miss"
)

// Metrics holds all Prometheus metrics. A nil *Metrics records nothing.
type Metrics struct {
	// Embedding cache metrics
	CacheLookupsTotal      *prometheus.CounterVec
	CacheWritesTotal       *prometheus.CounterVec
	CachePersistenceErrors *prometheus.CounterVec

	// Embedding service metrics
	EmbeddingCallsTotal    *prometheus.CounterVec
	EmbeddingCallDuration  prometheus.Histogram
	EmbeddingCallsInFlight prometheus.Gauge

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration prometheus.Histogram
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.CacheLookupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragreader_cache_lookups_total",
			Help: "Embedding cache lookups by result (memory, disk, miss)",
		},
		[]string{"result"},
	)

	m.CacheWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragreader_cache_writes_total",
			Help: "Embedding cache records written",
		},
		[]string{"status"},
	)

	m.CachePersistenceErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragreader_cache_persistence_errors_total",
			Help: "Embedding cache store failures by operation",
		},
		[]string{"op"},
	)

	m.EmbeddingCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragreader_embedding_calls_total",
			Help: "Calls to the embedding service by status",
		},
		[]string{"status"},
	)

	m.EmbeddingCallDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragreader_embedding_call_duration_seconds",
			Help:    "Duration of embedding service calls in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	m.EmbeddingCallsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "ragreader_embedding_calls_in_flight",
			Help: "Embedding service calls currently in flight",
		},
	)

	m.QueriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragreader_queries_total",
			Help: "Retrieval queries by status",
		},
		[]string{"status"},
	)

	m.QueryDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ragreader_query_duration_seconds",
			Help:    "Duration of retrieval queries in seconds, including the query embedding",
			Buckets: prometheus.DefBuckets,
		},
	)

	return m
}

func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCacheWrite(err error) {
	if m == nil {
		return
	}
	m.CacheWritesTotal.WithLabelValues(status(err)).Inc()
}

func (m *Metrics) RecordPersistenceError(op string) {
	if m == nil {
		return
	}
	m.CachePersistenceErrors.WithLabelValues(op).Inc()
}

// StartEmbeddingCall marks a call in flight; the returned func records its
// outcome.
func (m *Metrics) StartEmbeddingCall() func(err error) {
	if m == nil {
		return func(error) {}
	}
	start := time.Now()
	m.EmbeddingCallsInFlight.Inc()
	return func(err error) {
		m.EmbeddingCallsInFlight.Dec()
		m.EmbeddingCallsTotal.WithLabelValues(status(err)).Inc()
		m.EmbeddingCallDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordQuery(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(status(err)).Inc()
	m.QueryDuration.Observe(duration.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Serve exposes /metrics and /health on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"ragreader"}`))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
