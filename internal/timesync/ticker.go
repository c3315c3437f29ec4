package timesync

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultTickInterval = time.Second
	DefaultSyncInterval = 30 * time.Second
)

// Ticker maintains a displayed "current time" updated on a fast local tick
// and periodically resynchronized on a slower remote tick. The two run
// independently: a slow resync never delays a local tick.
type Ticker struct {
	cache        *Cache
	clock        clockwork.Clock
	tickInterval time.Duration
	syncInterval time.Duration
	logger       *slog.Logger

	resyncing atomic.Bool

	mu      sync.RWMutex
	current time.Time
	lastErr error
}

// NewTicker creates a Ticker over cache. Zero intervals use the defaults.
func NewTicker(cache *Cache, clock clockwork.Clock, tickInterval, syncInterval time.Duration, logger *slog.Logger) *Ticker {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	if syncInterval <= 0 {
		syncInterval = DefaultSyncInterval
	}
	t := &Ticker{
		cache:        cache,
		clock:        clock,
		tickInterval: tickInterval,
		syncInterval: syncInterval,
		logger:       logger,
	}
	t.current, _ = cache.Peek()
	return t
}

// Run drives both ticks until ctx is cancelled. It performs an initial sync
// in the background and waits for in-flight resyncs before returning.
func (t *Ticker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	local := t.clock.NewTicker(t.tickInterval)
	defer local.Stop()
	remote := t.clock.NewTicker(t.syncInterval)
	defer remote.Stop()

	t.resync(ctx, &wg, false)
	t.logger.Info("time ticker started", "tick", t.tickInterval, "sync", t.syncInterval)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("time ticker stopping", "reason", ctx.Err())
			return
		case <-local.Chan():
			t.update()
		case <-remote.Chan():
			t.resync(ctx, &wg, true)
		}
	}
}

// Current returns the displayed instant as of the last tick.
func (t *Ticker) Current() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// LastError returns the last resync failure, cleared by the next success.
func (t *Ticker) LastError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

// resync starts a background sync unless one is already running.
func (t *Ticker) resync(ctx context.Context, wg *sync.WaitGroup, forced bool) {
	if !t.resyncing.CompareAndSwap(false, true) {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer t.resyncing.Store(false)

		var err error
		if forced {
			err = t.cache.ForceResync(ctx)
		} else {
			t.cache.Now(ctx)
			err = t.cache.LastError()
		}
		if err != nil && ctx.Err() == nil {
			t.logger.Warn("time resync failed", "error", err)
		}

		t.mu.Lock()
		t.lastErr = err
		t.mu.Unlock()
		t.update()
	}()
}

func (t *Ticker) update() {
	now, _ := t.cache.Peek()
	t.mu.Lock()
	t.current = now
	t.mu.Unlock()
}
