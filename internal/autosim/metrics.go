package autosim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "baynet_sim_ticks_total",
		Help: "Total automatic simulator ticks",
	})

	// trials counts speculative mutations by whether the clone was kept.
	trials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "baynet_sim_trials_total",
		Help: "Total simulator trials by outcome",
	}, []string{"outcome"})
)
