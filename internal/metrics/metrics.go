// Package metrics holds the Prometheus collectors shared by the chronos
// services. Collectors are registered on an injected Registerer so tests can
// use a private registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chronos"

type Metrics struct {
	// ReservationTransitions counts scheduler state changes by target status.
	ReservationTransitions *prometheus.CounterVec
	// Executions counts guaranteed executions handed out by the scheduler.
	Executions prometheus.Counter

	CacheLookups *prometheus.CounterVec

	ChainLatency *prometheus.HistogramVec
	ChainErrors  *prometheus.CounterVec

	Batches *prometheus.CounterVec

	SyncDuration   prometheus.Histogram
	AccountsSynced *prometheus.CounterVec
	DecodeFailures *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ReservationTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "reservation_transitions_total",
			Help:      "Slot reservation state transitions by resulting status",
		}, []string{"status"}),
		Executions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "executions_total",
			Help:      "Transactions executed against a confirmed reservation",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "State cache lookups by query kind and result (hit, miss, shared)",
		}, []string{"query", "result"}),
		ChainLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "request_duration_seconds",
			Help:      "RPC request latency by method",
			Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
		ChainErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "errors_total",
			Help:      "RPC failures by method",
		}, []string{"method"}),
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "outcomes_total",
			Help:      "Execution batches by outcome (created, executed, failed)",
		}, []string{"outcome"}),
		SyncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "sync_duration_seconds",
			Help:      "Duration of one indexer sync pass",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		AccountsSynced: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "accounts_synced_total",
			Help:      "Accounts decoded and stored by kind",
		}, []string{"kind"}),
		DecodeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "codec",
			Name:      "decode_failures_total",
			Help:      "Accounts skipped because their bytes did not match the expected layout",
		}, []string{"kind"}),
	}
}

// NewNop returns collectors that are not registered anywhere.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
