package mutex

import (
	"context"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"testing"
	"time"
)

func TestNop(t *testing.T) {
	unlock, err := Nop{}.TryLock(context.Background(), "picarto", time.Minute)
	require.NoError(t, err)
	unlock()
	_, err = Nop{}.TryLock(context.Background(), "picarto", time.Minute)
	assert.NoError(t, err)
}

func TestBuilder_TryLock(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	b := NewBuilder(client)
	ctx := context.Background()
	service := "test-" + time.Now().Format("150405.000000")

	unlock, err := b.TryLock(ctx, service, time.Minute)
	require.NoError(t, err)

	_, err = b.TryLock(ctx, service, time.Minute)
	assert.True(t, errors.Is(err, ErrNotAcquired), "got %v", err)

	unlock()
	unlock, err = b.TryLock(ctx, service, time.Minute)
	require.NoError(t, err)
	unlock()
}

func TestBuilder_TryLockRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: 0})
	defer client.Close()
	b := NewBuilder(client)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	unlock, err := b.TryLock(ctx, "picarto", time.Minute)
	require.Error(t, err)
	assert.Nil(t, unlock)
	assert.False(t, errors.Is(err, ErrNotAcquired), "got %v", err)
}
