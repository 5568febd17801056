// Package ledger пишет журнал решений маршрутизации, сырые метрики и лог предсказаний.
// Все записи best-effort: сбой хранилища логируется и не влияет на уже принятое решение.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xela07ax/deception-core/internal/domain"
	"go.uber.org/zap"
)

const (
	ModelName      = "heuristic_analyzer"
	ModelVersion   = "1.0"
	PredictionType = "traffic_classification"
)

// Имена приемников для логов и метрик.
const (
	SinkDecision   = "routing_decision"
	SinkMetric     = "metric_sample"
	SinkPrediction = "prediction"
)

// Store - append-only приемник журнала. Обновлений и удалений нет.
type Store interface {
	AppendRoutingDecision(ctx context.Context, d domain.RoutingDecision) error
	AppendMetric(ctx context.Context, m domain.MetricSample) error
	AppendPrediction(ctx context.Context, p domain.PredictionRecord) error
}

type Ledger struct {
	store    Store
	guard    *Guard
	logger   *zap.Logger
	failures *prometheus.CounterVec
	now      func() time.Time
}

func New(store Store, guard *Guard, logger *zap.Logger, reg prometheus.Registerer) *Ledger {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if guard == nil {
		guard = NewGuard(GuardConfig{Name: "ledger"})
	}
	return &Ledger{
		store:  store,
		guard:  guard,
		logger: logger.Named("ledger"),
		failures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "deception_ledger_write_failures_total",
			Help: "Best-effort ledger writes that did not reach the store.",
		}, []string{"sink"}),
		now: time.Now,
	}
}

// Record добавляет решение, две метрики и запись предсказания.
// Ничего не возвращает: решение уже отдано вызывающему.
func (l *Ledger) Record(ctx context.Context, d domain.RoutingDecision, p domain.PredictionRecord) {
	l.write(ctx, SinkDecision, d.TraceID, func(ctx context.Context) error {
		return l.store.AppendRoutingDecision(ctx, d)
	})

	for _, m := range l.Samples(d) {
		l.write(ctx, SinkMetric, d.TraceID, func(ctx context.Context) error {
			return l.store.AppendMetric(ctx, m)
		})
	}

	l.write(ctx, SinkPrediction, d.TraceID, func(ctx context.Context) error {
		return l.store.AppendPrediction(ctx, p)
	})
}

func (l *Ledger) write(ctx context.Context, sink, traceID string, fn func(ctx context.Context) error) {
	if err := l.guard.Do(ctx, fn); err != nil {
		l.failures.WithLabelValues(sink).Inc()
		l.logger.Error("best-effort write failed",
			zap.String("sink", sink),
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
	}
}

// Samples - счетчик класса (value=1) и значение уверенности для внешних трендов.
func (l *Ledger) Samples(d domain.RoutingDecision) []domain.MetricSample {
	ts := l.now()
	return []domain.MetricSample{
		{
			ID:        uuid.NewString(),
			Type:      domain.MetricTypeClassification,
			Name:      domain.ClassificationCounterName(d.Classification),
			Value:     1,
			Timestamp: ts,
		},
		{
			ID:        uuid.NewString(),
			Type:      domain.MetricTypePerformance,
			Name:      domain.MetricNameConfidence,
			Value:     d.Confidence,
			Timestamp: ts,
		},
	}
}

// Prediction собирает запись лога предсказаний по решению.
func Prediction(d domain.RoutingDecision, path string) domain.PredictionRecord {
	indicators := make([]string, len(d.RiskIndicators))
	copy(indicators, d.RiskIndicators)

	return domain.PredictionRecord{
		ID:             uuid.NewString(),
		DecisionID:     d.ID,
		ModelName:      ModelName,
		ModelVersion:   ModelVersion,
		PredictionType: PredictionType,
		Features: map[string]any{
			"user_agent":       d.UserAgent,
			"destination_path": path,
			"source_ip":        d.SourceIP,
			"risk_indicators":  indicators,
		},
		Prediction: map[string]any{
			"classification": string(d.Classification),
			"risk_score":     d.RiskScore,
		},
		Confidence: d.Confidence,
		Timestamp:  d.Timestamp,
	}
}
