package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bsm/redislock"

	"supply-daddy-api-server/internal/sentinel"
)

// Gate admits at most one state-changing submission at a time. TryAcquire
// never waits: a held gate yields sentinel.ErrBusy.
type Gate interface {
	TryAcquire(ctx context.Context) (release func(), err error)
}

// LocalGate is an in-process gate.
type LocalGate struct {
	held atomic.Bool
}

func NewLocalGate() *LocalGate {
	return &LocalGate{}
}

func (g *LocalGate) TryAcquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !g.held.CompareAndSwap(false, true) {
		return nil, sentinel.ErrBusy
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.held.Store(false)
		}
	}, nil
}

func (g *LocalGate) Held() bool {
	return g.held.Load()
}

// RedisGate shares the gate between API replicas through a Redis lock.
// The TTL bounds how long a crashed holder can block everyone else.
type RedisGate struct {
	locker *redislock.Client
	key    string
	ttl    time.Duration
}

func NewRedisGate(client redislock.RedisClient, key string, ttl time.Duration) *RedisGate {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisGate{locker: redislock.New(client), key: key, ttl: ttl}
}

func (g *RedisGate) TryAcquire(ctx context.Context) (func(), error) {
	lock, err := g.locker.Obtain(ctx, g.key, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, sentinel.ErrBusy
	}
	if err != nil {
		return nil, fmt.Errorf("obtain submission gate: %w", err)
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}
