package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/deception-core/internal/domain"
	"golang.org/x/time/rate"
)

// ErrShed - запись отброшена лимитером.
var ErrShed = errors.New("write shed by rate limiter")

// GuardConfig - параметры предохранителя вокруг best-effort записей.
type GuardConfig struct {
	Name          string
	Timeout       time.Duration // таймаут одной записи
	MaxRequests   uint32        // пробные запросы в half-open
	Interval      time.Duration
	OpenTimeout   time.Duration // через сколько CB попробует "закрыться"
	MaxFailures   uint32        // ошибок подряд до размыкания
	RPS           float64
	Burst         int
	OnStateChange func(name string, open bool)
}

// Guard ограничивает записи в хранилище: лимитер, предохранитель и таймаут.
// Очереди и повторов нет: если запись нельзя выполнить сейчас, она отбрасывается.
type Guard struct {
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

func NewGuard(cfg GuardConfig) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}

	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, _ gobreaker.State, to gobreaker.State) {
			cfg.OnStateChange(name, to == gobreaker.StateOpen)
		}
	}

	return &Guard{
		cb:      gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.Timeout,
	}
}

// Do выполняет запись fn под защитой. Отмена ctx вызывающего не прерывает запись,
// ее ограничивает только собственный таймаут.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !g.limiter.Allow() {
		return ErrShed
	}

	_, err := g.cb.Execute(func() (interface{}, error) {
		tCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()
		return nil, fn(tCtx)
	})
	if err != nil {
		return fmt.Errorf("%w: guarded write: %w", domain.ErrPersistence, err)
	}
	return nil
}

// Open - предохранитель разомкнут и записи сейчас не доходят до хранилища.
func (g *Guard) Open() bool {
	return g.cb.State() == gobreaker.StateOpen
}
