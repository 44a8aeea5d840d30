package conversation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postlens_turns_total",
		Help: "Resolved turns by effective turn type and action.",
	}, []string{"turn_type", "action"})

	reclassifiedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postlens_reclassified_turns_total",
		Help: "New-topic turns without dates reclassified as chatter while awaiting a date.",
	})

	classifierFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postlens_classifier_failures_total",
		Help: "Turns resolved with the raw-prompt fallback plan.",
	})

	matchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "postlens_match_duration_seconds",
		Help:    "Time spent in the tiered matcher.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	matchResults = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "postlens_match_results_count",
		Help:    "Rows returned by the tiered matcher.",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "postlens_sessions_active",
		Help: "Session states currently held in memory.",
	})
)
