package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/deception-core/internal/domain"
	"github.com/xela07ax/deception-core/internal/geo"
	"github.com/xela07ax/deception-core/internal/ledger"
	"github.com/xela07ax/deception-core/internal/repository/memory"
	"github.com/xela07ax/deception-core/internal/risk"
	"github.com/xela07ax/deception-core/internal/routing"
	"go.uber.org/zap/zaptest"
)

// failingLedgerStore - хранилище, в котором чтения работают, а все записи падают.
type failingLedgerStore struct {
	*memory.Store
}

var errWriteDown = errors.New("write path down")

func (failingLedgerStore) AppendRoutingDecision(context.Context, domain.RoutingDecision) error {
	return errWriteDown
}

func (failingLedgerStore) AppendMetric(context.Context, domain.MetricSample) error {
	return errWriteDown
}

func (failingLedgerStore) AppendPrediction(context.Context, domain.PredictionRecord) error {
	return errWriteDown
}

func newTestRouter(t *testing.T, store *memory.Store, sink ledger.Store) *Router {
	t.Helper()
	logger := zaptest.NewLogger(t)
	if sink == nil {
		sink = store
	}
	return NewRouter(
		risk.NewScorer(store, store, logger),
		routing.NewResolver(nil, func(int) int { return 0 }),
		store,
		geo.Noop{},
		ledger.New(sink, nil, logger, nil),
		NewMetrics(nil),
		RouterConfig{},
		logger,
	)
}

func seedDecoys(s *memory.Store) {
	s.PutDecoy(domain.DecoyDestination{ID: "d1", URL: "http://decoy.local/admin", Category: "admin", Active: true})
	s.PutDecoy(domain.DecoyDestination{ID: "d2", URL: "http://decoy.local/shop", Category: "ecommerce", Active: true})
}

func TestRoute_CurlOnWPAdmin(t *testing.T) {
	store := memory.NewStore()
	seedDecoys(store)
	rt := newTestRouter(t, store, nil)

	obs := domain.TrafficObservation{
		SourceIP:       "1.2.3.4",
		DestinationURL: "http://x/wp-admin",
		UserAgent:      "curl/7.0",
		Headers:        map[string]string{"X-Forwarded-For": "1.2.3.4"},
	}
	d, err := rt.Route(context.Background(), obs)
	require.NoError(t, err)

	assert.Equal(t, 70, d.RiskScore)
	assert.Equal(t, domain.ClassMalicious, d.Classification)
	assert.InDelta(t, 0.70, d.Confidence, 1e-9)
	require.NotNil(t, d.RedirectURL)
	assert.Equal(t, "http://decoy.local/admin", *d.RedirectURL)
	assert.Equal(t, map[string]string{}, d.GeoLocation)

	// в журнале ровно то, что вернули вызывающему
	stored, err := store.RoutingDecision(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Classification, stored.Classification)
	assert.Equal(t, d.Confidence, stored.Confidence)
	assert.Equal(t, d.RedirectURL, stored.RedirectURL)

	// изменения у вызывающего после записи не попадают в журнал
	d.RiskIndicators[0] = "changed"
	*d.RedirectURL = "http://elsewhere"
	obs.Headers["X-Forwarded-For"] = "changed"

	stored, err = store.RoutingDecision(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Automated tool detected", "Sensitive path access"}, stored.RiskIndicators)
	assert.Equal(t, "http://decoy.local/admin", *stored.RedirectURL)
	assert.Equal(t, map[string]string{"X-Forwarded-For": "1.2.3.4"}, stored.Headers)

	metrics := store.Metrics()
	require.Len(t, metrics, 2)
	assert.Equal(t, "malicious_count", metrics[0].Name)
	assert.Len(t, store.Predictions(), 1)
}

func TestRoute_EmptyDecoySetKeepsVerdict(t *testing.T) {
	store := memory.NewStore()
	rt := newTestRouter(t, store, nil)

	d, err := rt.Route(context.Background(), domain.TrafficObservation{
		SourceIP: "1.2.3.4", DestinationURL: "http://x/wp-admin", UserAgent: "curl/7.0",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ClassMalicious, d.Classification)
	assert.InDelta(t, 0.70, d.Confidence, 1e-9)
	assert.Nil(t, d.RedirectURL)
}

func TestRoute_LegitimateNeverRedirects(t *testing.T) {
	store := memory.NewStore()
	seedDecoys(store)
	rt := newTestRouter(t, store, nil)

	d, err := rt.Route(context.Background(), domain.TrafficObservation{
		SourceIP: "10.0.0.1", DestinationURL: "https://shop.example/cart", UserAgent: "Mozilla/5.0",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ClassLegitimate, d.Classification)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Nil(t, d.RedirectURL)
	assert.Empty(t, d.RiskIndicators)
}

func TestRoute_RedirectNamesActiveDecoy(t *testing.T) {
	store := memory.NewStore()
	store.PutDecoy(domain.DecoyDestination{ID: "off", URL: "http://decoy.local/retired", Category: "admin", Active: false})
	store.PutDecoy(domain.DecoyDestination{ID: "on", URL: "http://decoy.local/blog", Category: "content", Active: true})
	store.PutIndicator(domain.ThreatIndicator{Type: domain.IndicatorTypeIP, Value: "6.6.6.6"})
	rt := newTestRouter(t, store, nil)

	d, err := rt.Route(context.Background(), domain.TrafficObservation{SourceIP: "6.6.6.6", DestinationURL: "http://x/"})
	require.NoError(t, err)
	assert.Equal(t, domain.ClassSuspicious, d.Classification)
	assert.Equal(t, []string{risk.LabelMaliciousIP}, d.RiskIndicators)
	require.NotNil(t, d.RedirectURL)
	assert.Equal(t, "http://decoy.local/blog", *d.RedirectURL)
}

func TestRoute_LedgerFailureStillReturnsDecision(t *testing.T) {
	store := memory.NewStore()
	seedDecoys(store)
	rt := newTestRouter(t, store, failingLedgerStore{store})

	d, err := rt.Route(context.Background(), domain.TrafficObservation{
		SourceIP: "1.2.3.4", DestinationURL: "http://x/admin", UserAgent: "wget/1.21",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ClassMalicious, d.Classification)
	assert.NotNil(t, d.RedirectURL)

	_, err = store.RoutingDecision(context.Background(), d.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRoute_InvalidObservation(t *testing.T) {
	rt := newTestRouter(t, memory.NewStore(), nil)

	for _, obs := range []domain.TrafficObservation{
		{DestinationURL: "http://x/"},
		{SourceIP: "not-an-ip", DestinationURL: "http://x/"},
		{SourceIP: "1.2.3.4"},
	} {
		_, err := rt.Route(context.Background(), obs)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
}

func TestRoute_UsesTraceIDFromContext(t *testing.T) {
	rt := newTestRouter(t, memory.NewStore(), nil)

	d, err := rt.Route(WithTraceID(context.Background(), "trace-42"), domain.TrafficObservation{
		SourceIP: "::1", DestinationURL: "http://x/",
	})
	require.NoError(t, err)
	assert.Equal(t, "trace-42", d.TraceID)
}
