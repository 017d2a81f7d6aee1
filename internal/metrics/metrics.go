package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reconciliation and queue counters, partitioned by transaction type + asset.

var (
	// Reconciliation engine
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "anchor",
		Subsystem: "reconcile",
		Name:      "jobs_processed_total",
		Help:      "Total reconciliation jobs processed, by outcome",
	}, []string{"type", "asset", "outcome"})

	OutputsReconciledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "anchor",
		Subsystem: "reconcile",
		Name:      "outputs_reconciled_total",
		Help:      "Total outputs reconciled into ledger records, by resulting state",
	}, []string{"type", "asset", "state"})

	TransactionsForwardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "anchor",
		Subsystem: "reconcile",
		Name:      "transactions_forwarded_total",
		Help:      "Total transactions enqueued to the settlement stage",
	}, []string{"type", "asset"})

	JobLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "anchor",
		Subsystem: "reconcile",
		Name:      "job_duration_seconds",
		Help:      "Reconciliation job processing duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"type", "asset"})

	// Queue
	QueueJobsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "anchor",
		Subsystem: "queue",
		Name:      "jobs_published_total",
		Help:      "Total jobs published to a queue stream",
	}, []string{"stream"})

	QueueJobsRetriedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "anchor",
		Subsystem: "queue",
		Name:      "jobs_retried_total",
		Help:      "Total jobs scheduled for redelivery",
	}, []string{"stream"})

	QueueJobsDeadTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "anchor",
		Subsystem: "queue",
		Name:      "jobs_dead_total",
		Help:      "Total jobs dropped after exhausting redelivery attempts",
	}, []string{"stream"})

	// Rates
	RateLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "anchor",
		Subsystem: "rates",
		Name:      "lookups_total",
		Help:      "Total USD rate lookups, by result",
	}, []string{"asset", "result"})

	// Chain RPC
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "anchor",
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Total chain RPC calls by status",
	}, []string{"chain", "method", "status"})

	RPCRateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "anchor",
		Subsystem: "rpc",
		Name:      "rate_limit_waits_total",
		Help:      "Total RPC calls delayed by the client-side rate limiter",
	}, []string{"chain"})

	// Alerting
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "anchor",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Total alerts sent per channel",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "anchor",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Total alerts suppressed by cooldown",
	}, []string{"channel", "type"})
)
