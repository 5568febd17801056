package audit

/*
Trail - асинхронный журнал административных действий (activity log).

- Оркестратор только кладет запись в буферизованный канал и сразу идет дальше:
  задержки хранилища не влияют на время ответа команды.
- Воркер копит записи и пишет пачкой по размеру или по таймеру.
- При переполнении буфера запись отбрасывается с ошибкой в логе (load shedding).
- Stop закрывает вход, вычитывает остаток канала и делает финальный flush.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/deception-core/internal/domain"
	"go.uber.org/zap"
)

// Store определяет, куда физически пишутся записи журнала.
type Store interface {
	AppendActivityLogs(ctx context.Context, entries []domain.ActivityLogEntry) error
}

// Logger - то, что нужно оркестратору от журнала.
type Logger interface {
	Log(entry domain.ActivityLogEntry)
}

type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

type Trail struct {
	ch     chan domain.ActivityLogEntry
	store  Store
	cfg    Config
	logger *zap.Logger
	wg     sync.WaitGroup

	// mu защищает закрытие канала от гонки с Log
	mu     sync.RWMutex
	closed bool
}

func NewTrail(store Store, cfg Config, logger *zap.Logger) *Trail {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Trail{
		ch:     make(chan domain.ActivityLogEntry, cfg.BufferSize),
		store:  store,
		cfg:    cfg,
		logger: logger.With(zap.String("mod", "audit")),
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop запирает вход и ждет, пока воркер допишет все, что уже в очереди.
func (t *Trail) Stop() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.ch)
	t.mu.Unlock()

	t.logger.Info("stopping audit trail: flushing buffer")
	t.wg.Wait()
	t.logger.Info("audit trail stopped")
}

// Log ставит запись в очередь, никогда не блокируя вызывающего.
func (t *Trail) Log(entry domain.ActivityLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		t.logger.Warn("activity entry dropped: trail is stopped",
			zap.String("action", entry.Action),
			zap.String("resource_id", entry.ResourceID),
		)
		return
	}

	select {
	case t.ch <- entry:
	default:
		t.logger.Error("audit_buffer_overflow",
			zap.String("action", entry.Action),
			zap.String("resource_id", entry.ResourceID),
		)
	}
}

// Pending - сколько записей ждет в буфере.
func (t *Trail) Pending() int {
	return len(t.ch)
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]domain.ActivityLogEntry, 0, t.cfg.BatchSize)
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: контекст команды к этому моменту уже завершен
		ctx, cancel := context.WithTimeout(context.Background(), t.cfg.WriteTimeout)
		defer cancel()
		if err := t.store.AppendActivityLogs(ctx, batch); err != nil {
			t.logger.Error("activity log flush failed", zap.Int("lost", len(batch)), zap.Error(err))
		}
		batch = make([]domain.ActivityLogEntry, 0, t.cfg.BatchSize)
	}

	for {
		select {
		case entry, ok := <-t.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= t.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
