// Package lock provides exclusive sections keyed by name, held either
// in-process or across replicas through Redis.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	obsmetrics "github.com/smallbiznis/quotaledger/internal/observability/metrics"
)

var ErrNotConfigured = errors.New("lock client not configured")

// Unlock releases a held section. It is safe to call more than once.
type Unlock func()

// Locker blocks until the section for key is held or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

type chain struct {
	lockers []Locker
	metrics *obsmetrics.BackendMetrics
}

// Chain acquires every locker in order and releases them in reverse.
func Chain(metrics *obsmetrics.BackendMetrics, lockers ...Locker) Locker {
	active := make([]Locker, 0, len(lockers))
	for _, l := range lockers {
		if l != nil {
			active = append(active, l)
		}
	}
	return &chain{lockers: active, metrics: metrics}
}

func (c *chain) Lock(ctx context.Context, key string) (Unlock, error) {
	start := time.Now()
	held := make([]Unlock, 0, len(c.lockers))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	for _, l := range c.lockers {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}
	c.metrics.ObserveLockWait(key, time.Since(start))
	return once(release), nil
}

func once(fn func()) Unlock {
	var o sync.Once
	return func() { o.Do(fn) }
}
