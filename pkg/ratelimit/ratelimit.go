package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Store is a counter per key within a rolling window. Incr returns the
// post-increment count for the key; the store owns expiry of the counter.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type Limiter struct {
	store Store
}

func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store}
}

// Allow reports whether another attempt of action for key fits inside the
// window. This is an advisory anti-abuse gate, not a correctness control:
// when the counter store is unavailable the action is allowed and a warning
// is logged, because availability wins over strict enforcement here.
func (l *Limiter) Allow(ctx context.Context, action, key string, limit int64, window time.Duration) bool {
	if l == nil || l.store == nil {
		return true
	}

	count, err := l.store.Incr(ctx, fmt.Sprintf("ratelimit:%s:%s", action, key), window)
	if err != nil {
		logrus.Warnf("rate limit store unavailable for action %s, allowing: %v", action, err)
		return true
	}

	return count <= limit
}
