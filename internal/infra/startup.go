package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Параметры ожидания зависимостей при старте
const (
	startupAttempts = 5
	startupDelay    = 500 * time.Millisecond
	checkTimeout    = 3 * time.Second
)

// WaitReady повторяет проверку с экспоненциальной задержкой, пока зависимость не ответит.
// Используется только при старте: в рабочем цикле повторов нет.
func WaitReady(ctx context.Context, name string, check func(ctx context.Context) error, logger *zap.Logger) error {
	return waitReady(ctx, name, check, logger, startupAttempts, startupDelay)
}

func waitReady(ctx context.Context, name string, check func(ctx context.Context) error, logger *zap.Logger, attempts uint, delay time.Duration) error {
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("dependency not ready", zap.String("dependency", name), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)

	err := r.Do(func() error {
		pCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		return check(pCtx)
	})
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", name, err)
	}
	logger.Info("dependency ready", zap.String("dependency", name))
	return nil
}

// NewRedisClient открывает клиент и дожидается ответа на PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	err := WaitReady(ctx, "redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, logger)
	if err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}
