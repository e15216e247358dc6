package dlcmanager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered against the default registerer at package init,
// the standard client_golang idiom (no pack repo exercises this library
// directly; it is only ever listed as a dependency, so this file follows
// the ecosystem's own promauto convention rather than a corpus example).
var (
	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dlcd",
		Subsystem: "manager",
		Name:      "messages_processed_total",
		Help:      "DLC protocol messages processed, by message type and outcome.",
	}, []string{"msg_type", "outcome"})

	periodicCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dlcd",
		Subsystem: "manager",
		Name:      "periodic_check_duration_seconds",
		Help:      "Wall-clock duration of a single PeriodicCheck pass.",
	})

	oracleFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dlcd",
		Subsystem: "manager",
		Name:      "oracle_fetch_failures_total",
		Help:      "Oracle attestation fetches that errored or were not yet available.",
	}, []string{"event_id"})

	contractsByStage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dlcd",
		Subsystem: "manager",
		Name:      "contracts_by_stage",
		Help:      "Number of contracts observed in each lifecycle stage during the last PeriodicCheck.",
	}, []string{"stage"})
)
