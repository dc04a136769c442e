// Package lock provides cross-instance mutual exclusion on Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

// Locker hands out exclusive leases on keys. A held lease is refreshed at
// half its TTL until released.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New builds a Locker on the Redis client.
func New(client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *Locker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locker{client: redislock.New(client), ttl: ttl, logger: logger}
}

// Acquire obtains key without waiting. A held key yields
// shared.ErrBatchInProgress.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	lease, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", shared.ErrBatchInProgress, key)
	}
	if err != nil {
		return nil, fmt.Errorf("platform/lock: obtain %s: %w", key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := lease.Refresh(context.Background(), l.ttl, nil); err != nil {
					l.logger.Warn("refresh lock", slog.String("key", key), slog.Any("error", err))
					return
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-done
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("release lock", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}
