// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CompletionRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epiphany_completion_requests_total",
			Help: "Completion calls by provider, purpose and outcome.",
		},
		[]string{"provider", "purpose", "outcome"},
	)

	CompletionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "epiphany_completion_duration_seconds",
			Help:    "Latency of completion calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"provider", "purpose"},
	)

	Interviews = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epiphany_interviews_total",
			Help: "Interviews by outcome (completed, failed, canceled).",
		},
		[]string{"outcome"},
	)

	InterviewsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "epiphany_interviews_running",
			Help: "Interviews currently in progress.",
		},
	)

	Personas = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "epiphany_personas",
			Help: "Personas in the current roster.",
		},
	)

	StoreChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epiphany_store_changes_total",
			Help: "Committed document store mutations by document type.",
		},
		[]string{"type", "op"},
	)
)

func init() {
	prometheus.MustRegister(CompletionRequests)
	prometheus.MustRegister(CompletionDuration)
	prometheus.MustRegister(Interviews)
	prometheus.MustRegister(InterviewsRunning)
	prometheus.MustRegister(Personas)
	prometheus.MustRegister(StoreChanges)
}

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
