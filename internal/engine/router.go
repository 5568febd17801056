// Package engine - Data Plane классификации трафика: оценка риска, вердикт,
// выбор декоя и запись решения в журнал.
package engine

import (
	"context"
	"fmt"
	"maps"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/deception-core/internal/domain"
	"github.com/xela07ax/deception-core/internal/geo"
	"github.com/xela07ax/deception-core/internal/ledger"
	"github.com/xela07ax/deception-core/internal/risk"
	"github.com/xela07ax/deception-core/internal/routing"
	"go.uber.org/zap"
)

// DecoySource отдает активные декои на момент решения.
type DecoySource interface {
	ActiveDecoys(ctx context.Context) ([]domain.DecoyDestination, error)
}

// Recorder - best-effort журнал решений. Реализуется ledger.Ledger.
type Recorder interface {
	Record(ctx context.Context, d domain.RoutingDecision, p domain.PredictionRecord)
}

type Router struct {
	scorer       *risk.Scorer
	resolver     *routing.Resolver
	decoys       DecoySource
	locator      geo.Locator
	recorder     Recorder
	metrics      *Metrics
	logger       *zap.Logger
	storeTimeout time.Duration
	now          func() time.Time
}

type RouterConfig struct {
	StoreTimeout time.Duration
}

func NewRouter(
	scorer *risk.Scorer,
	resolver *routing.Resolver,
	decoys DecoySource,
	locator geo.Locator,
	recorder Recorder,
	metrics *Metrics,
	cfg RouterConfig,
	logger *zap.Logger,
) *Router {
	if locator == nil {
		locator = geo.Noop{}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 2 * time.Second
	}
	return &Router{
		scorer:       scorer,
		resolver:     resolver,
		decoys:       decoys,
		locator:      locator,
		recorder:     recorder,
		metrics:      metrics,
		logger:       logger.Named("router"),
		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
	}
}

// Route классифицирует одно наблюдение. Ошибка возвращается только для
// некорректного наблюдения; сбои хранилища деградируют до решения без их вклада.
func (rt *Router) Route(ctx context.Context, obs domain.TrafficObservation) (domain.RoutingDecision, error) {
	if err := validateObservation(obs); err != nil {
		rt.metrics.ErrorTotal.WithLabelValues("invalid_request").Inc()
		return domain.RoutingDecision{}, err
	}

	start := rt.now()
	traceID := TraceIDFromContext(ctx)

	// Чтения коллабораторов ограничены по времени, запросы не висят на медленной БД
	storeCtx, cancel := context.WithTimeout(ctx, rt.storeTimeout)
	defer cancel()

	// 1. Риск и вердикт
	assessment := rt.scorer.Score(storeCtx, obs)
	class, confidence := risk.Classify(assessment.Score)

	// 2. Декой только для нелегитимного трафика
	var redirect *string
	if class != domain.ClassLegitimate {
		redirect = rt.resolveDecoy(storeCtx, class, traceID)
	}

	decision := domain.RoutingDecision{
		ID:             uuid.NewString(),
		TraceID:        traceID,
		SourceIP:       obs.SourceIP,
		DestinationURL: obs.DestinationURL,
		Classification: class,
		Confidence:     confidence,
		RedirectURL:    redirect,
		RiskScore:      assessment.Score,
		RiskIndicators: assessment.Indicators,
		UserAgent:      obs.UserAgent,
		Method:         obs.Method,
		Headers:        maps.Clone(obs.Headers),
		GeoLocation:    rt.locator.Locate(storeCtx, obs.SourceIP),
		Timestamp:      start.UTC(),
	}
	decision.ProcessingMs = rt.now().Sub(start).Milliseconds()

	// 3. Решение уже принято, дальше только best-effort записи
	if rt.recorder != nil {
		rt.recorder.Record(ctx, decision, ledger.Prediction(decision, assessment.Path))
	}

	rt.metrics.RiskScore.Observe(float64(assessment.Score))
	rt.metrics.Decisions.WithLabelValues(string(class), strconv.FormatBool(redirect != nil)).Inc()
	rt.metrics.RouteDuration.WithLabelValues(string(class)).Observe(rt.now().Sub(start).Seconds())

	rt.logger.Debug("traffic routed",
		zap.String("trace_id", traceID),
		zap.String("source_ip", obs.SourceIP),
		zap.String("classification", string(class)),
		zap.Int("risk_score", assessment.Score),
		zap.Bool("redirected", redirect != nil),
	)

	return decision, nil
}

func (rt *Router) resolveDecoy(ctx context.Context, class domain.Classification, traceID string) *string {
	if rt.decoys == nil {
		return nil
	}
	decoys, err := rt.decoys.ActiveDecoys(ctx)
	if err != nil {
		rt.metrics.ErrorTotal.WithLabelValues("decoy_lookup").Inc()
		rt.logger.Warn("decoy lookup failed, routing without redirect",
			zap.String("trace_id", traceID), zap.Error(err))
		return nil
	}
	url, ok := rt.resolver.Resolve(class, decoys)
	if !ok {
		return nil
	}
	return &url
}

func validateObservation(obs domain.TrafficObservation) error {
	if strings.TrimSpace(obs.SourceIP) == "" {
		return fmt.Errorf("%w: source_ip is required", domain.ErrValidation)
	}
	if _, err := netip.ParseAddr(obs.SourceIP); err != nil {
		return fmt.Errorf("%w: source_ip %q is not an IP address", domain.ErrValidation, obs.SourceIP)
	}
	if strings.TrimSpace(obs.DestinationURL) == "" {
		return fmt.Errorf("%w: destination_url is required", domain.ErrValidation)
	}
	return nil
}
