package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// contextAssemblies counts GetContext calls.
	contextAssemblies = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signalbank",
			Subsystem: "memory",
			Name:      "context_assemblies_total",
			Help:      "Total number of context assemblies",
		},
	)

	// contextAssemblyDuration tracks GetContext latency.
	contextAssemblyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "signalbank",
			Subsystem: "memory",
			Name:      "context_assembly_duration_seconds",
			Help:      "Duration of context assembly in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// storeDegraded counts per-store degradations during context assembly.
	// Labels: store (episodic, semantic, procedural)
	storeDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalbank",
			Subsystem: "memory",
			Name:      "store_degraded_total",
			Help:      "Total number of store degradations during context assembly",
		},
		[]string{"store"},
	)

	// recordPersists counts background durable writes by result.
	// Labels: result (ok, dropped)
	recordPersists = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalbank",
			Subsystem: "memory",
			Name:      "record_persists_total",
			Help:      "Total number of background durable writes by result",
		},
		[]string{"result"},
	)
)
