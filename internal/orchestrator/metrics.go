package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Команды по действию и исходу (ok, conflict, not_found, invalid, error)
	Commands *prometheus.CounterVec

	// Длительность выполнения команды, включая паузу restart
	CommandDuration *prometheus.HistogramVec

	// Переходы, закончившиеся статусом error
	Failures *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		Commands: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "deception_orchestrator_commands_total",
			Help: "Deployment commands by action and outcome.",
		}, []string{"action", "outcome"}),

		CommandDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deception_orchestrator_command_duration_seconds",
			Help:    "Histogram of deployment command latencies.",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"action"}),

		Failures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "deception_orchestrator_error_transitions_total",
			Help: "Transitions that left a honeypot in the error state.",
		}, []string{"action"}),
	}
}
