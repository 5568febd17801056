package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/deception-core/internal/domain"
	"github.com/xela07ax/deception-core/internal/infra"
	"go.uber.org/zap"
)

// Locker дает эксклюзивное право на переход одного ханипота.
// Захват не ждет: занятый ключ сразу дает ErrConflict.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), err error)
}

// KeyedLocker - блокировки внутри одного процесса консоли.
type KeyedLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{held: make(map[string]struct{})}
}

func (l *KeyedLocker) TryLock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[key]; busy {
		return nil, fmt.Errorf("%w: transition already in progress for honeypot %s", domain.ErrConflict, key)
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// releaseScript удаляет ключ только если он все еще принадлежит нашему токену.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker - аренда (SET NX PX) для нескольких экземпляров консоли.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, logger: logger.Named("redis-locker")}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), error) {
	lockKey := infra.HoneypotLockKey(key)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", lockKey, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: transition already in progress for honeypot %s", domain.ErrConflict, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Отпускаем даже если контекст команды уже отменен
			rCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rCtx, l.rdb, []string{lockKey}, token).Err(); err != nil {
				l.logger.Warn("lease release failed, it will expire by ttl",
					zap.String("key", lockKey), zap.Error(err))
			}
		})
	}, nil
}
