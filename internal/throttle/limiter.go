// Package throttle enforces per-action request quotas over fixed time
// windows. A fixed window admits up to twice the limit across a window
// boundary; the simpler accounting is an accepted trade-off over a
// sliding window.
package throttle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const sweepInterval = time.Minute

type bucket struct {
	count       int
	windowStart time.Time
	window      time.Duration
}

func (b *bucket) expired(now time.Time) bool {
	return !now.Before(b.windowStart.Add(b.window))
}

// Metrics receives a signal for every denied check.
type Metrics interface {
	ThrottleDenied(class string)
}

// Limiter is a constructor-injected fixed-window counter store. All
// check state is process-local; buckets are created lazily and swept
// once expired.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limits  Limits
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
}

// NewLimiter constructs a Limiter with the given quota table.
func NewLimiter(limits Limits, logger *slog.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		limits:  limits,
		logger:  logger,
		now:     time.Now,
	}
}

// SetMetrics attaches a denial counter. Nil disables reporting.
func (l *Limiter) SetMetrics(m Metrics) {
	l.metrics = m
}

// Check counts one request against the identifier's quota for the action
// class. The read-check-increment sequence is atomic per key: concurrent
// bursts can never both observe a free slot that only one may take.
// Denial still increments the counter, so probing a hit limit never
// resets or extends the caller's standing.
func (l *Limiter) Check(identifier string, class Class) Result {
	limit, ok := l.limits[class]
	if !ok || limit.Max <= 0 {
		// Unconfigured classes fail open; abuse control must not take
		// down well-behaved traffic on a config gap.
		return Result{Allowed: true, Limit: 0, Remaining: 0, ResetAt: l.now()}
	}

	key := identifier + "|" + class.String()
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[key]
	if b == nil || b.expired(now) {
		l.buckets[key] = &bucket{count: 1, windowStart: now, window: limit.Window}
		return Result{
			Allowed:   true,
			Limit:     limit.Max,
			Remaining: limit.Max - 1,
			ResetAt:   now.Add(limit.Window),
		}
	}

	b.count++
	resetAt := b.windowStart.Add(b.window)
	if b.count > limit.Max {
		if l.metrics != nil {
			l.metrics.ThrottleDenied(class.String())
		}
		return Result{Allowed: false, Limit: limit.Max, Remaining: 0, ResetAt: resetAt}
	}
	return Result{
		Allowed:   true,
		Limit:     limit.Max,
		Remaining: limit.Max - b.count,
		ResetAt:   resetAt,
	}
}

// Run sweeps expired buckets until the context is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := l.sweep()
			if removed > 0 && l.logger != nil {
				l.logger.Debug("throttle sweep", slog.Int("removed", removed))
			}
		}
	}
}

// sweep removes buckets whose window has been expired for at least one
// full extra window. The grace margin keeps the sweep from deleting a
// bucket that a concurrent Check is about to reset in place.
func (l *Limiter) sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if !now.Before(b.windowStart.Add(2 * b.window)) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}
