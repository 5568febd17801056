package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/deception-core/internal/domain"
	"go.uber.org/zap/zaptest"
)

type recordingStore struct {
	mu          sync.Mutex
	fail        error
	calls       int
	decisions   []domain.RoutingDecision
	metrics     []domain.MetricSample
	predictions []domain.PredictionRecord
}

func (s *recordingStore) AppendRoutingDecision(_ context.Context, d domain.RoutingDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return s.fail
	}
	s.decisions = append(s.decisions, d)
	return nil
}

func (s *recordingStore) AppendMetric(_ context.Context, m domain.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return s.fail
	}
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *recordingStore) AppendPrediction(_ context.Context, p domain.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return s.fail
	}
	s.predictions = append(s.predictions, p)
	return nil
}

func testDecision() domain.RoutingDecision {
	redirect := "http://decoy/admin"
	return domain.RoutingDecision{
		ID:             "d-1",
		TraceID:        "t-1",
		SourceIP:       "1.2.3.4",
		DestinationURL: "http://x/wp-admin",
		Classification: domain.ClassMalicious,
		Confidence:     0.7,
		RedirectURL:    &redirect,
		RiskScore:      70,
		RiskIndicators: []string{"Automated tool detected", "Sensitive path access"},
		UserAgent:      "curl/7.0",
		Timestamp:      time.Now(),
	}
}

func TestLedger_RecordWritesDecisionMetricsAndPrediction(t *testing.T) {
	store := &recordingStore{}
	l := New(store, NewGuard(GuardConfig{Name: "test"}), zaptest.NewLogger(t), nil)

	d := testDecision()
	l.Record(context.Background(), d, Prediction(d, "/wp-admin"))

	require.Len(t, store.decisions, 1)
	assert.Equal(t, d, store.decisions[0])

	require.Len(t, store.metrics, 2)
	assert.Equal(t, domain.MetricTypeClassification, store.metrics[0].Type)
	assert.Equal(t, "malicious_count", store.metrics[0].Name)
	assert.Equal(t, 1.0, store.metrics[0].Value)
	assert.Equal(t, domain.MetricTypePerformance, store.metrics[1].Type)
	assert.Equal(t, domain.MetricNameConfidence, store.metrics[1].Name)
	assert.Equal(t, 0.7, store.metrics[1].Value)

	require.Len(t, store.predictions, 1)
	p := store.predictions[0]
	assert.Equal(t, "d-1", p.DecisionID)
	assert.Equal(t, ModelName, p.ModelName)
	assert.Equal(t, ModelVersion, p.ModelVersion)
	assert.Equal(t, PredictionType, p.PredictionType)
	assert.Equal(t, "/wp-admin", p.Features["destination_path"])
	assert.Equal(t, "malicious", p.Prediction["classification"])
	assert.Equal(t, 70, p.Prediction["risk_score"])
}

func TestLedger_FailingStoreIsSwallowed(t *testing.T) {
	store := &recordingStore{fail: errors.New("connection refused")}
	reg := prometheus.NewRegistry()
	l := New(store, NewGuard(GuardConfig{Name: "test", MaxFailures: 100}), zaptest.NewLogger(t), reg)

	d := testDecision()
	assert.NotPanics(t, func() {
		l.Record(context.Background(), d, Prediction(d, "/"))
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(l.failures.WithLabelValues(SinkDecision)))
	assert.Equal(t, 2.0, testutil.ToFloat64(l.failures.WithLabelValues(SinkMetric)))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.failures.WithLabelValues(SinkPrediction)))
}

func TestLedger_CancelledRequestStillWrites(t *testing.T) {
	store := &recordingStore{}
	l := New(store, nil, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := testDecision()
	l.Record(ctx, d, Prediction(d, "/"))
	assert.Len(t, store.decisions, 1)
}

func TestGuard_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	g := NewGuard(GuardConfig{Name: "test", MaxFailures: 3, OpenTimeout: time.Minute})

	var calls int
	failing := func(context.Context) error {
		calls++
		return errors.New("boom")
	}

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, g.Do(context.Background(), failing), domain.ErrPersistence)
	}
	assert.True(t, g.Open())

	// разомкнутый предохранитель не пропускает запись до хранилища
	assert.Error(t, g.Do(context.Background(), failing))
	assert.Equal(t, 3, calls)
}

func TestGuard_ShedsOverRateLimit(t *testing.T) {
	g := NewGuard(GuardConfig{Name: "test", RPS: 0.001, Burst: 1})

	ok := func(context.Context) error { return nil }
	assert.NoError(t, g.Do(context.Background(), ok))
	assert.ErrorIs(t, g.Do(context.Background(), ok), ErrShed)
}

func TestGuard_WriteTimeout(t *testing.T) {
	g := NewGuard(GuardConfig{Name: "test", Timeout: 20 * time.Millisecond})

	err := g.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
