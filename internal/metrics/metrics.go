// Package metrics holds the Prometheus collectors for the economy, the
// settlement loop and the live balance feed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crudeidle_settlement_ticks_total",
		Help: "Settlement ticks executed",
	})
	SettlementEarned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crudeidle_settlement_earned_total",
		Help: "Currency credited by settlement ticks",
	})
	SettlementStepFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crudeidle_settlement_step_failures_total",
		Help: "Settlement steps that degraded to their default",
	}, []string{"step"})
	LastBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crudeidle_balance",
		Help: "Available balance published by the last settlement tick",
	})

	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crudeidle_mutations_total",
		Help: "Funds-gated mutations by action and outcome",
	}, []string{"action", "outcome"})
	MutationRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crudeidle_mutation_retries_total",
		Help: "Mutation transactions retried after a serialization conflict",
	})

	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crudeidle_feed_subscribers",
		Help: "Live balance feed subscribers currently attached",
	})
	FeedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crudeidle_feed_dropped_total",
		Help: "Updates dropped because a subscriber buffer was full",
	})
)

func ObserveTick(earned, balance int64) {
	SettlementTicks.Inc()
	if earned > 0 {
		SettlementEarned.Add(float64(earned))
	}
	LastBalance.Set(float64(balance))
}

func ObserveStepFailure(step string) {
	SettlementStepFailures.WithLabelValues(step).Inc()
}

func ObserveMutation(action, outcome string) {
	Mutations.WithLabelValues(action, outcome).Inc()
}
