package vectorstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: operation (add, search, delete), result (success, error, embedding_error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalbank",
			Subsystem: "vectorstore",
			Name:      "operations_total",
			Help:      "Total number of vector store operations",
		},
		[]string{"operation", "result"},
	)

	// SearchDuration tracks how long similarity searches take.
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "signalbank",
			Subsystem: "vectorstore",
			Name:      "search_duration_seconds",
			Help:      "Duration of similarity search operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func recordOperation(operation, result string) {
	OperationsTotal.WithLabelValues(operation, result).Inc()
}

func observeSearchDuration(d time.Duration) {
	SearchDuration.Observe(d.Seconds())
}
