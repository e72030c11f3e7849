// Package metrics holds the engine's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	trustEdgesUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concord_trust_edges_upserted_total",
		Help: "Total number of trust edge upserts",
	})

	trustComputationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "concord_trust_computation_duration_seconds",
		Help:    "Duration of transitive trust computations",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})

	corroborationSources = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_corroboration_sources_total",
		Help: "Sources attached to beliefs, labelled by the resulting status",
	}, []string{"status"})

	commitmentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_commitment_outcomes_total",
		Help: "Commit-reveal outcomes",
	}, []string{"outcome"})

	disputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_disputes_total",
		Help: "Dispute filings and resolutions",
	}, []string{"outcome"})

	slashingEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_slashing_events_total",
		Help: "Slashing event transitions",
	}, []string{"severity", "status"})

	stakeForfeited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concord_stake_forfeited_total",
		Help: "Total stake forfeited by slashing and dismissed disputes",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concord_http_requests_total",
		Help: "HTTP requests by method and status class",
	}, []string{"method", "class"})
)

func RecordTrustEdgeUpserted() {
	trustEdgesUpserted.Inc()
}

func ObserveTrustComputation(seconds float64) {
	trustComputationDuration.Observe(seconds)
}

func RecordCorroborationSource(status string) {
	corroborationSources.WithLabelValues(status).Inc()
}

// RecordCommitmentOutcome takes one of committed, revealed, penalty,
// invalid or no_reveal.
func RecordCommitmentOutcome(outcome string, n int) {
	commitmentOutcomes.WithLabelValues(outcome).Add(float64(n))
}

func RecordDispute(outcome string) {
	disputes.WithLabelValues(outcome).Inc()
}

func RecordSlashingEvent(severity, status string) {
	slashingEvents.WithLabelValues(severity, status).Inc()
}

func RecordStakeForfeited(amount float64) {
	if amount > 0 {
		stakeForfeited.Add(amount)
	}
}

func RecordHTTPRequest(method string, status int) {
	class := "2xx"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 300:
		class = "3xx"
	}
	httpRequests.WithLabelValues(method, class).Inc()
}
