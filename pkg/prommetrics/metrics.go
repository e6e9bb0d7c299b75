package prommetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RegistryNamespace is the namespace for all upkeep registry metrics.
const RegistryNamespace = "upkeep_registry"

// Transmit pipeline metrics
var (
	RegistryTransmitsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "transmits_accepted",
		Help:      "Count of transmit calls that passed quorum and report verification",
	})
	RegistryTransmitsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "transmits_rejected",
		Help:      "Count of transmit calls rejected before any ledger mutation",
	}, []string{"reason"})
	RegistryUpkeepsPerformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "upkeeps_performed",
		Help:      "Count of batch items that reached execution, by outcome",
	}, []string{"success"})
	RegistryUpkeepsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "upkeeps_skipped",
		Help:      "Count of batch items skipped by the eligibility guard, by reason",
	}, []string{"reason"})
	RegistryPaymentJuels = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: RegistryNamespace,
		Name:      "payment_juels_total",
		Help:      "Total payment credited to transmitters in juels",
	})
	RegistryActiveUpkeeps = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: RegistryNamespace,
		Name:      "active_upkeeps",
		Help:      "Number of live upkeeps in the ledger",
	})
)
