// Package metrics holds the Prometheus collectors for the generation lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modeapp_generations_submitted_total",
			Help: "Generation submissions by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modeapp_generation_reconciliations_total",
			Help: "Reconciliation attempts by outcome",
		},
		[]string{"outcome"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modeapp_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Reconciliation outcomes.
const (
	OutcomeCompleted  = "completed"
	OutcomeFailed     = "failed"
	OutcomeInFlight   = "in_flight"
	OutcomePollError  = "poll_error"
	OutcomeFetchError = "fetch_error"
	OutcomeSuperseded = "superseded"
)
