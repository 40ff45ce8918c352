// Package ratelimit provides sliding-window admission control keyed by
// (route, client), backed by an external counter store. When the store is
// absent or unreachable the limiter fails open: every check admits, but the
// bypass is observable through Decision.Disabled and the limiter's Enabled
// state.
package ratelimit

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Tier is one rate-limit policy: at most Limit admits per trailing Window.
type Tier struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Disabled reports that the check was bypassed because no counter store
	// is reachable. Always paired with Allowed.
	Disabled bool

	// RetryAfter is how long a denied client should wait.
	RetryAfter time.Duration
}

// Store is the external counter the limiter leans on. Implementations must
// provide atomic increment-with-expiry semantics.
type Store interface {
	// Incr atomically increments key, setting expiry on first touch, and
	// returns the new value.
	Incr(ctx context.Context, key string, expiry time.Duration) (int64, error)

	// Get returns the current value of key, or 0 if absent.
	Get(ctx context.Context, key string) (int64, error)
}

// Limiter applies per-route sliding-window admission control. The window is
// the standard two-bucket estimate: the previous fixed window's count is
// weighted by how much of it still overlaps the trailing window.
type Limiter struct {
	store    Store
	tiers    map[string]Tier
	fallback Tier
	prefix   string
	log      *zap.Logger

	warnOnce sync.Once
	now      func() time.Time
}

// New creates a limiter. A nil store yields a limiter that is permanently
// disabled (every check admits).
func New(store Store, tiers map[string]Tier, fallback Tier, prefix string, log *zap.Logger) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		store:    store,
		tiers:    tiers,
		fallback: fallback,
		prefix:   prefix,
		log:      log,
		now:      time.Now,
	}
}

// Enabled reports whether a counter store is configured.
func (l *Limiter) Enabled() bool {
	return l.store != nil
}

// Check runs one admission decision for (clientKey, route). It is evaluated
// before any protocol or facilitator work so denied requests stay cheap.
func (l *Limiter) Check(ctx context.Context, clientKey, route string) Decision {
	if l.store == nil {
		l.warnBypass(nil)
		return Decision{Allowed: true, Disabled: true}
	}

	tier, ok := l.tiers[route]
	if !ok {
		tier = l.fallback
	}

	now := l.now()
	window := tier.Window.Milliseconds()
	bucket := now.UnixMilli() / window

	curKey := l.key(route, clientKey, bucket)
	prevKey := l.key(route, clientKey, bucket-1)

	// Counters live for two windows so the previous bucket is still
	// readable while it overlaps the trailing window.
	current, err := l.store.Incr(ctx, curKey, 2*tier.Window)
	if err != nil {
		l.warnBypass(err)
		return Decision{Allowed: true, Disabled: true}
	}

	previous, err := l.store.Get(ctx, prevKey)
	if err != nil {
		l.warnBypass(err)
		return Decision{Allowed: true, Disabled: true}
	}

	elapsed := now.UnixMilli() - bucket*window
	weight := 1 - float64(elapsed)/float64(window)
	estimate := float64(current) + float64(previous)*weight

	if estimate > float64(tier.Limit) {
		reset := time.UnixMilli((bucket + 1) * window)
		retryAfter := time.Duration(math.Ceil(reset.Sub(now).Seconds())) * time.Second
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Decision{Allowed: false, RetryAfter: retryAfter}
	}

	return Decision{Allowed: true}
}

func (l *Limiter) key(route, clientKey string, bucket int64) string {
	return l.prefix + ":" + route + ":" + clientKey + ":" + strconv.FormatInt(bucket, 10)
}

func (l *Limiter) warnBypass(err error) {
	l.warnOnce.Do(func() {
		l.log.Warn("rate limiting disabled, admitting all requests", zap.Error(err))
	})
}
