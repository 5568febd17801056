package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: полное время классификации, включая запись в журнал
	RouteDuration *prometheus.HistogramVec

	// Traffic: решения по классам и наличию редиректа
	Decisions *prometheus.CounterVec

	// Score: распределение баллов риска
	RiskScore prometheus.Histogram

	// Errors: отказы запросов и сбои чтения коллабораторов
	ErrorTotal *prometheus.CounterVec

	// Saturation: состояние предохранителя журнала (0 - ок, 1 - выбило)
	LedgerBreakerState *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - если реестр не передан, метрики пишутся в никуда
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RouteDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deception_route_duration_seconds",
			Help:    "Histogram of classify-and-route latencies.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"classification"}),

		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "deception_routing_decisions_total",
			Help: "Total number of routing decisions by classification.",
		}, []string{"classification", "redirected"}),

		RiskScore: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "deception_risk_score",
			Help:    "Distribution of heuristic risk scores.",
			Buckets: []float64{0, 10, 30, 50, 70, 100, 150, 200},
		}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "deception_route_errors_total",
			Help: "Total number of errors by type.",
		}, []string{"type"}), // типы: invalid_request, decoy_lookup

		LedgerBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "deception_ledger_breaker_state",
			Help: "Current state of the ledger circuit breaker (0=closed, 1=open).",
		}, []string{"name"}),
	}
}

// BreakerHook подключается к ledger.GuardConfig.OnStateChange.
func (m *Metrics) BreakerHook(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.LedgerBreakerState.WithLabelValues(name).Set(v)
}
