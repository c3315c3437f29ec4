// Package timesync keeps an authoritative UTC clock synchronized against a
// remote time source and extrapolates between syncs with the local
// monotonic clock.
package timesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultTTL is how long a snapshot is trusted before Now resyncs.
	DefaultTTL = 30 * time.Second
	// DefaultRetryAfter throttles remote syncs after a failure.
	DefaultRetryAfter = 5 * time.Second
)

// Source returns the authoritative current UTC instant.
type Source interface {
	FetchTime(ctx context.Context) (time.Time, error)
}

// snapshot pairs a remote reading with the local instant it was taken at.
// capturedAt comes from the injected clock, so with a real clock elapsed time
// is measured on the monotonic reading.
type snapshot struct {
	reference  time.Time
	capturedAt time.Time
}

// Cache answers "what time is it" from the last remote sync plus local
// elapsed time. It is safe for concurrent use.
type Cache struct {
	source     Source
	clock      clockwork.Clock
	ttl        time.Duration
	retryAfter time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics

	// syncMu serializes remote syncs; mu guards the fields below and is never
	// held across a network call.
	syncMu      sync.Mutex
	mu          sync.Mutex
	snap        snapshot
	hasSnap     bool
	stale       bool
	lastFailure time.Time
	lastErr     error
}

// NewCache creates a time cache over source. A zero ttl uses DefaultTTL.
func NewCache(source Source, clock clockwork.Clock, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		source:     source,
		clock:      clock,
		ttl:        ttl,
		retryAfter: DefaultRetryAfter,
		logger:     logger,
		metrics:    metrics,
	}
}

// Now returns the synchronized UTC instant. It syncs when there is no
// snapshot or the snapshot is older than the TTL. It never fails: when the
// remote source is unavailable it returns the system clock in UTC.
func (c *Cache) Now(ctx context.Context) time.Time {
	if t, ok := c.fresh(); ok {
		return t
	}
	if c.throttled() {
		return c.systemNow()
	}
	if err := c.sync(ctx, false); err != nil {
		c.logger.Warn("time sync failed, using system clock", "error", err)
		return c.systemNow()
	}
	if t, ok := c.fresh(); ok {
		return t
	}
	return c.systemNow()
}

// ForceResync discards the current snapshot's freshness and syncs
// immediately. On failure the old snapshot stays available to Peek, and Now
// falls back to the system clock until a sync succeeds.
func (c *Cache) ForceResync(ctx context.Context) error {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()

	if err := c.sync(ctx, true); err != nil {
		return fmt.Errorf("time resync: %w", err)
	}
	return nil
}

// Peek extrapolates from the last snapshot, fresh or not, without touching
// the network. ok is false when no sync has ever succeeded, in which case
// the system clock is returned.
func (c *Cache) Peek() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasSnap {
		return c.systemNow(), false
	}
	return c.extrapolate(), true
}

// LastError returns the error of the most recent failed sync, or nil if the
// most recent sync succeeded.
func (c *Cache) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Cache) fresh() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasSnap || c.stale || c.clock.Since(c.snap.capturedAt) > c.ttl {
		return time.Time{}, false
	}
	return c.extrapolate(), true
}

func (c *Cache) throttled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr != nil && c.clock.Since(c.lastFailure) < c.retryAfter
}

// sync fetches a new snapshot. Unless forced, it returns early when another
// caller synced (or failed to) while this one waited for syncMu.
func (c *Cache) sync(ctx context.Context, forced bool) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	if !forced {
		if _, ok := c.fresh(); ok {
			return nil
		}
		if c.throttled() {
			return c.LastError()
		}
	}

	ref, err := c.source.FetchTime(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.lastFailure = c.clock.Now()
		c.lastErr = err
		c.metrics.TimeSyncs.WithLabelValues("error").Inc()
		return err
	}
	c.snap = snapshot{reference: ref.UTC(), capturedAt: c.clock.Now()}
	c.hasSnap = true
	c.stale = false
	c.lastErr = nil
	c.metrics.TimeSyncs.WithLabelValues("success").Inc()
	c.logger.Debug("time synchronized", "reference", c.snap.reference)
	return nil
}

// extrapolate requires c.mu.
func (c *Cache) extrapolate() time.Time {
	return c.snap.reference.Add(c.clock.Since(c.snap.capturedAt))
}

func (c *Cache) systemNow() time.Time {
	return c.clock.Now().UTC()
}
