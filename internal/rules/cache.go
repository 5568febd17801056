package rules

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/deception-core/internal/domain"
	"github.com/xela07ax/deception-core/internal/infra"
	"go.uber.org/zap"
)

// Repository - источник активных правил (PostgreSQL или in-memory).
type Repository interface {
	ActiveRules(ctx context.Context) ([]domain.RoutingRule, error)
}

// Cache - in-memory копия активных правил маршрутизации, уже упорядоченная.
// Hot Path читает только память; перезагрузка идет по сигналу из Redis.
type Cache struct {
	mu    sync.RWMutex
	rules []domain.RoutingRule
	ready bool

	repo   Repository
	rdb    *redis.Client
	logger *zap.Logger
}

func NewCache(repo Repository, rdb *redis.Client, logger *zap.Logger) *Cache {
	return &Cache{
		repo:   repo,
		rdb:    rdb,
		logger: logger.Named("rules-cache"),
	}
}

// ActiveRules отдает копию кэша. До первой загрузки идет напрямую в репозиторий.
func (c *Cache) ActiveRules(ctx context.Context) ([]domain.RoutingRule, error) {
	c.mu.RLock()
	if c.ready {
		out := make([]domain.RoutingRule, len(c.rules))
		copy(out, c.rules)
		c.mu.RUnlock()
		return out, nil
	}
	c.mu.RUnlock()

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	return c.ActiveRules(ctx)
}

// Refresh выполняет «холодную загрузку» правил из хранилища.
func (c *Cache) Refresh(ctx context.Context) error {
	loaded, err := c.repo.ActiveRules(ctx)
	if err != nil {
		return err
	}

	active := make([]domain.RoutingRule, 0, len(loaded))
	for _, r := range loaded {
		if r.Active {
			active = append(active, r)
		}
	}
	sorted := Sort(active)

	c.mu.Lock()
	c.rules = sorted
	c.ready = true
	c.mu.Unlock()

	c.logger.Info("rules cache refreshed", zap.Int("count", len(sorted)))
	return nil
}

// StartListener подписывается на сигнал обновления правил. Блокирует до отмены ctx.
func (c *Cache) StartListener(ctx context.Context) {
	if c.rdb == nil {
		return
	}
	infra.ListenResilient(ctx, c.rdb, c.logger, infra.RedisChanRulesRefresh,
		c.Refresh,
		func(ctx context.Context, payload string) {
			if err := c.Refresh(ctx); err != nil {
				c.logger.Error("rules refresh failed", zap.String("signal", payload), zap.Error(err))
			}
		},
	)
}

// PublishRefresh рассылает сигнал всем роутерам перечитать правила.
func PublishRefresh(ctx context.Context, rdb *redis.Client) error {
	return rdb.Publish(ctx, infra.RedisChanRulesRefresh, "refresh").Err()
}
