//go:build integration

package checkpoint

import (
	"context"
	"os"
	"testing"
	"time"

	"studyprogress/internal/config"
	contextutils "studyprogress/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	ctx := context.Background()
	rdb, err := NewRedisClient(ctx, config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	defer rdb.Close()

	s := NewRedisStore(rdb, "studyprogress:test", time.Minute)
	cp := sampleCheckpoint(99)
	require.NoError(t, s.Save(ctx, cp))

	ttl, err := rdb.TTL(ctx, "studyprogress:test:99").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	got, err := s.Load(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, cp.SessionID, got.SessionID)
	assert.True(t, cp.ReferenceTime.Equal(got.ReferenceTime))

	require.NoError(t, s.Clear(ctx, 99))
	_, err = s.Load(ctx, 99)
	assert.ErrorIs(t, err, contextutils.ErrRecordNotFound)
}
