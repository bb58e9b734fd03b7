// Package metrics exposes the Prometheus collectors shared by the core
// components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the registered collectors.
type Metrics struct {
	Registry *prometheus.Registry

	EventsIngested      *prometheus.CounterVec
	ClaimTransitions    *prometheus.CounterVec
	ClaimsSweptStale    prometheus.Counter
	Corroborations      *prometheus.CounterVec
	ScoreRecomputations *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		EventsIngested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crisispulse_events_ingested_total",
			Help: "Events submitted for ingestion, by dedup outcome.",
		}, []string{"outcome"}), // "stored" or "duplicate"
		ClaimTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crisispulse_claim_transitions_total",
			Help: "Successful claim status transitions.",
		}, []string{"from", "to"}),
		ClaimsSweptStale: factory.NewCounter(prometheus.CounterOpts{
			Name: "crisispulse_claims_swept_stale_total",
			Help: "Claims moved to stale by the staleness sweep.",
		}),
		Corroborations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crisispulse_corroborations_total",
			Help: "Corroboration submissions, by resulting claim action.",
		}, []string{"action"}), // "stored", "confirmed", "debunked"
		ScoreRecomputations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crisispulse_score_recomputations_total",
			Help: "Entity score recomputations, by trigger.",
		}, []string{"trigger"}), // "read_miss", "explicit", "market_rollup"
	}
}
