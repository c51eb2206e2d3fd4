package learning

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// outcomesProcessed counts processed outcomes.
	outcomesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signalbank",
			Subsystem: "learning",
			Name:      "outcomes_processed_total",
			Help:      "Total number of processed outcomes",
		},
	)

	// feedbackProcessed counts feedback records by result.
	// Labels: result (ok, invalid)
	feedbackProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalbank",
			Subsystem: "learning",
			Name:      "feedback_processed_total",
			Help:      "Total number of feedback records by result",
		},
		[]string{"result"},
	)

	// durableWrites counts background persistence writes by target and result.
	// Labels: write (outcome, actor, subject, feedback), result (ok, dropped)
	durableWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalbank",
			Subsystem: "learning",
			Name:      "durable_writes_total",
			Help:      "Total number of background persistence writes by target and result",
		},
		[]string{"write", "result"},
	)

	// cyclesTotal counts learning cycles by result.
	// Labels: result (success, error, canceled)
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signalbank",
			Subsystem: "learning",
			Name:      "cycles_total",
			Help:      "Total number of learning cycles by result",
		},
		[]string{"result"},
	)

	// patternsDetected counts patterns emitted by the recognizer.
	patternsDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "signalbank",
			Subsystem: "learning",
			Name:      "patterns_detected_total",
			Help:      "Total number of patterns detected",
		},
	)

	// explorationRate is the learner's current exploration rate.
	explorationRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signalbank",
			Subsystem: "learning",
			Name:      "exploration_rate",
			Help:      "Current epsilon-greedy exploration rate",
		},
	)
)
