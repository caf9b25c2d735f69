package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Indexing and retrieval Prometheus metrics.
var (
	IndexRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_runs_total",
			Help:      "Indexing runs by final state",
		},
		[]string{"state"},
	)

	IndexBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_batches_total",
			Help:      "Outer indexing batches by outcome",
		},
		[]string{"status"},
	)

	IndexBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_batch_duration_seconds",
			Help:      "Outer batch processing time including embedding and upsert",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)

	IndexImagesUpsertedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_images_upserted_total",
			Help:      "Vector entries written to the index",
		},
	)

	IndexCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_created_total",
			Help:      "Vector indexes created by this process",
		},
	)

	VectorDeletesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_deletes_total",
			Help:      "Vector retractions on image deletion by outcome",
		},
		[]string{"status"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end image search latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
)

var registerOnce sync.Once

// Register registers the domain metrics with the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingImagesTotal,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingCacheTotal,
			IndexRunsTotal,
			IndexBatchesTotal,
			IndexBatchDuration,
			IndexImagesUpsertedTotal,
			IndexCreatedTotal,
			VectorDeletesTotal,
			SearchDuration,
		)
	})
}
