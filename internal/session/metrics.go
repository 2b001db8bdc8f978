package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mythic_turns_total",
			Help: "Turns by result.",
		},
		[]string{"result"},
	)
	reconciliationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mythic_reconciliations_total",
			Help: "Background state patches by outcome.",
		},
		[]string{"outcome"},
	)
	savesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mythic_saves_total",
			Help: "Save attempts by result.",
		},
		[]string{"result"},
	)
	deathsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mythic_deaths_total",
		Help: "Characters that died.",
	})
)
