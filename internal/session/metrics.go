package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// recomputations counts engine runs by result.
	recomputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "baynet_recomputations_total",
		Help: "Total network recomputations by result",
	}, []string{"result"})

	// rejectedEvidence counts evidence values that failed parsing or
	// domain checks.
	rejectedEvidence = promauto.NewCounter(prometheus.CounterOpts{
		Name: "baynet_evidence_rejected_total",
		Help: "Total evidence values rejected as invalid",
	})
)
