package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/deception-core/internal/domain"
	"go.uber.org/zap/zaptest"
)

type batchStore struct {
	mu      sync.Mutex
	batches [][]domain.ActivityLogEntry
	fail    error
}

func (s *batchStore) AppendActivityLogs(_ context.Context, entries []domain.ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.batches = append(s.batches, entries)
	return nil
}

func (s *batchStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestTrail_FlushesBySize(t *testing.T) {
	store := &batchStore{}
	tr := NewTrail(store, Config{BatchSize: 2, FlushInterval: time.Hour}, zaptest.NewLogger(t))
	tr.Start()
	defer tr.Stop()

	tr.Log(domain.ActivityLogEntry{Action: domain.ActivityHoneypotDeployed, ResourceID: "h1"})
	tr.Log(domain.ActivityLogEntry{Action: domain.ActivityHoneypotStopped, ResourceID: "h1"})

	require.Eventually(t, func() bool { return store.total() == 2 }, time.Second, 5*time.Millisecond)
}

func TestTrail_FlushesByTimer(t *testing.T) {
	store := &batchStore{}
	tr := NewTrail(store, Config{BatchSize: 100, FlushInterval: 10 * time.Millisecond}, zaptest.NewLogger(t))
	tr.Start()
	defer tr.Stop()

	tr.Log(domain.ActivityLogEntry{Action: domain.ActivityHoneypotScaled, ResourceID: "h1"})
	require.Eventually(t, func() bool { return store.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestTrail_StopDrainsAndFillsDefaults(t *testing.T) {
	store := &batchStore{}
	tr := NewTrail(store, Config{BatchSize: 100, FlushInterval: time.Hour}, zaptest.NewLogger(t))
	tr.Start()

	for i := 0; i < 10; i++ {
		tr.Log(domain.ActivityLogEntry{Action: domain.ActivityHoneypotDeployed})
	}
	tr.Stop()

	assert.Equal(t, 10, store.total())
	first := store.batches[0][0]
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Timestamp.IsZero())

	// после остановки записи отбрасываются, а повторный Stop безопасен
	tr.Log(domain.ActivityLogEntry{Action: domain.ActivityHoneypotDeployed})
	tr.Stop()
	assert.Equal(t, 10, store.total())
}

func TestTrail_OverflowSheds(t *testing.T) {
	store := &batchStore{}
	tr := NewTrail(store, Config{BufferSize: 2, BatchSize: 100, FlushInterval: time.Hour}, zaptest.NewLogger(t))

	// воркер не запущен: буфер заполняется и лишнее отбрасывается
	for i := 0; i < 5; i++ {
		tr.Log(domain.ActivityLogEntry{Action: domain.ActivityHoneypotDeployed})
	}
	assert.Equal(t, 2, tr.Pending())

	tr.Start()
	tr.Stop()
	assert.Equal(t, 2, store.total())
}

func TestTrail_StoreFailureIsLogged(t *testing.T) {
	store := &batchStore{fail: errors.New("db down")}
	tr := NewTrail(store, Config{}, zaptest.NewLogger(t))
	tr.Start()
	tr.Log(domain.ActivityLogEntry{Action: domain.ActivityHoneypotDeployed})
	assert.NotPanics(t, tr.Stop)
	assert.Zero(t, store.total())
}
