package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "code-attempts:"

const redisTimeout = 300 * time.Millisecond

// Attempts counts wrong validation-code attempts per key (booking or exchange
// plus caller). Once Limit failures were registered within Window, Exceeded
// reports true until the window runs out.
type Attempts interface {
	Exceeded(ctx context.Context, key string) (bool, error)
	Fail(ctx context.Context, key string) error
}

// Redis keeps counters in Redis with INCR and EXPIRE so every API instance
// shares them.
type Redis struct {
	Client redis.Cmdable
	Limit  int
	Window time.Duration
}

var _ Attempts = (*Redis)(nil)

func (l *Redis) Fail(ctx context.Context, key string) error {
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	k := counterKey(key)
	val, err := l.Client.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("can't increment attempt counter: %w", err)
	}

	if val == 1 {
		if err := l.Client.Expire(ctx, k, l.Window).Err(); err != nil {
			return fmt.Errorf("can't set counter expiration: %w", err)
		}
	}

	return nil
}

func (l *Redis) Exceeded(ctx context.Context, key string) (bool, error) {
	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	c, err := l.Client.Get(ctx, counterKey(key)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}

	return c >= l.Limit, nil
}

func counterKey(key string) string {
	return cacheKeyPrefix + key
}

// Local is an in-process Attempts used when no Redis is configured.
type Local struct {
	Limit  int
	Window time.Duration
	Now    func() time.Time

	mu       sync.Mutex
	counters map[string]localCounter
}

type localCounter struct {
	count   int
	expires time.Time
}

var _ Attempts = (*Local)(nil)

// NewLocal creates a Local limiter.
func NewLocal(limit int, window time.Duration) *Local {
	return &Local{Limit: limit, Window: window, Now: time.Now, counters: make(map[string]localCounter)}
}

func (l *Local) Fail(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.Now()
	c := l.counters[key]
	if !now.Before(c.expires) {
		c = localCounter{expires: now.Add(l.Window)}
	}
	c.count++
	l.counters[key] = c
	return nil
}

func (l *Local) Exceeded(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.counters[key]
	if !ok || !l.Now().Before(c.expires) {
		return false, nil
	}
	return c.count >= l.Limit, nil
}
