package mutex

import (
	"context"
	"fmt"
	"github.com/go-redis/redis"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis"
	"github.com/pkg/errors"
	"time"
)

const (
	pollKeyPattern = "poll:%v"
	minExpiration  = time.Second * 5
)

var ErrNotAcquired = errors.New("lock is held by another instance")

// Locker guards a poll tick so that only one instance polls a service at a time.
type Locker interface {
	// TryLock makes a single attempt. The returned function releases the lock.
	TryLock(ctx context.Context, service string, expiry time.Duration) (func(), error)
}

type Builder struct {
	rs *redsync.Redsync
}

func NewBuilder(client *redis.Client) *Builder {
	pool := goredis.NewPool(client)
	rs := redsync.New(pool)
	return &Builder{rs: rs}
}

func (b *Builder) Poll(service string, expiry time.Duration) *redsync.Mutex {
	if expiry < minExpiration {
		expiry = minExpiration
	}
	key := fmt.Sprintf(pollKeyPattern, service)
	return b.rs.NewMutex(key, redsync.WithExpiry(expiry), redsync.WithTries(1))
}

func (b *Builder) TryLock(ctx context.Context, service string, expiry time.Duration) (func(), error) {
	lock := b.Poll(service, expiry)
	err := lock.LockContext(ctx)
	if err == redsync.ErrFailed {
		return nil, errors.Wrapf(ErrNotAcquired, "%v", service)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "unable to lock %v", service)
	}
	return func() {
		// an expired lock is fine, the next tick will take it again
		_, _ = lock.UnlockContext(context.Background())
	}, nil
}

// Nop is used when no Redis is configured.
type Nop struct{}

func (Nop) TryLock(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}
