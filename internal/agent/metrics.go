package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	narrationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postlens_narration_failures_total",
		Help: "Narration calls that ended with the apology message",
	})

	conversationLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postlens_conversation_log_dropped_total",
		Help: "Conversation log events dropped because the queue was full",
	})
)
