package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWaitReady_RetriesUntilReady(t *testing.T) {
	calls := 0
	err := waitReady(context.Background(), "db", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, zaptest.NewLogger(t), 5, time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWaitReady_GivesUp(t *testing.T) {
	calls := 0
	err := waitReady(context.Background(), "db", func(context.Context) error {
		calls++
		return errors.New("connection refused")
	}, zaptest.NewLogger(t), 2, time.Millisecond)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "db unreachable")
	assert.Equal(t, 2, calls)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rdb.Close()

	require.NoError(t, rdb.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
