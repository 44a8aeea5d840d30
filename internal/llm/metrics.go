package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postlens_llm_calls_total",
		Help: "Completion calls by provider, model and outcome.",
	}, []string{"provider", "model", "status"})

	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postlens_llm_duration_seconds",
		Help:    "Time from request start until the stream ends.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"provider", "model"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postlens_llm_retries_total",
		Help: "Completion attempts that were retried.",
	}, []string{"provider"})
)
