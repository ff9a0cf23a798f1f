// Package telemetry exposes the pipeline's prometheus metrics and a small
// HTTP middleware recording request durations. Served at /metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_samples_enqueued_total",
		Help: "Samples accepted by the producer and pushed to the queue.",
	})
	EnqueueFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_enqueue_failures_total",
		Help: "Enqueue attempts that failed at the queue store.",
	})

	BatchesFlushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_consumer_batches_total",
		Help: "Consumer batches flushed to part files.",
	})
	FlushFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_consumer_flush_failures_total",
		Help: "Batch flushes that failed; items stay in the in-flight list.",
	})
	PartsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_parts_written_total",
		Help: "Part files written by the consumer.",
	})
	RowsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_rows_written_total",
		Help: "Rows written into part files.",
	})
	CorruptItems = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_corrupt_items_total",
		Help: "Undecodable queue items dropped from the in-flight list.",
	})
	ItemsRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_items_requeued_total",
		Help: "Stranded in-flight items replayed to the main queue.",
	})

	Compactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_compactions_total",
		Help: "Successful (user, day) compactions.",
	})
	CompactionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_compaction_failures_total",
		Help: "Compactions aborted by a write failure.",
	})
	PartsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_parts_archived_total",
		Help: "Part files moved to the archive after compaction.",
	})

	Queries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_queries_total",
		Help: "Read queries served.",
	})
	UnreadableFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heartbeat_unreadable_files_total",
		Help: "Parquet files skipped because they could not be read.",
	})

	FlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "heartbeat_flush_duration_seconds",
		Help:    "Duration of consumer batch flushes.",
		Buckets: prometheus.DefBuckets,
	})
	CompactionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "heartbeat_compaction_duration_seconds",
		Help:    "Duration of per-partition compactions.",
		Buckets: prometheus.DefBuckets,
	})
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heartbeat_http_request_duration_seconds",
		Help:    "HTTP request duration by method, path and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Middleware records request duration and status for every handler.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)
		RequestDuration.
			WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(srw.status)).
			Observe(time.Since(start).Seconds())
	})
}
