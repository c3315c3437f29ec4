// Package store holds the published hazard feed, runs refresh passes and
// serves memoized derived views of the feed.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/aggregate"
	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultInterval is the automatic refresh cadence.
	DefaultInterval = 60 * time.Second

	initialRetryBackoff = 5 * time.Second
)

// ErrSuperseded is returned by a pass whose result was discarded because a
// newer pass completed first or the pass was cancelled by a manual refresh.
var ErrSuperseded = errors.New("pass superseded")

// Aggregator runs one aggregation pass over sources.
type Aggregator interface {
	Aggregate(ctx context.Context, sources []aggregate.Source, q aggregate.Query) (domain.Feed, aggregate.Report)
}

// TimeSource supplies the synchronized current instant.
type TimeSource interface {
	Now(ctx context.Context) time.Time
}

// Options configures a Store. Zero values use the defaults.
type Options struct {
	Query    aggregate.Query
	Interval time.Duration
	// Times stamps feeds and answers CurrentTime. Nil uses Clock.
	Times TimeSource
	// Clock drives the refresh loop. Nil uses the real clock.
	Clock clockwork.Clock
}

// Store is the single owner of the published feed. All methods are safe for
// concurrent use.
type Store struct {
	agg      Aggregator
	sources  []aggregate.Source
	query    aggregate.Query
	interval time.Duration
	times    TimeSource
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	// seq issues pass sequence numbers.
	seq atomic.Uint64

	mu        sync.RWMutex
	feed      domain.Feed
	status    Status
	published uint64
	version   uint64

	// settled is the state left by the last completed pass; running holds
	// the passes still in flight.
	settled State
	running map[uint64]struct{}

	autoMu     sync.Mutex
	autoCancel context.CancelFunc

	views viewCache

	subsMu   sync.Mutex
	subs     map[int]chan domain.Feed
	nextSub  int
	notified uint64
}

// New creates a Store over sources.
func New(agg Aggregator, sources []aggregate.Source, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Store {
	if opts.Query.Cap <= 0 {
		opts.Query.Cap = aggregate.DefaultCap
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Store{
		agg:      agg,
		sources:  sources,
		query:    opts.Query,
		interval: opts.Interval,
		times:    opts.Times,
		clock:    opts.Clock,
		logger:   logger,
		metrics:  metrics,
		feed:     domain.Feed{Events: []domain.Event{}},
		status:   Status{State: StateLoading},
		settled:  StateLoading,
		running:  make(map[uint64]struct{}),
		subs:     make(map[int]chan domain.Feed),
	}
}

// Feed returns the current published feed. Its Events slice is shared and
// must not be modified.
func (s *Store) Feed() domain.Feed {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.feed
}

// Status returns the current lifecycle state.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// CheckReadiness reports ready once any pass has published a feed.
func (s *Store) CheckReadiness(_ context.Context) error {
	st := s.Status()
	if st.HasData {
		return nil
	}
	if st.Err != "" {
		return errors.New("no feed published yet: " + st.Err)
	}
	return errors.New("no feed published yet")
}

// CurrentTime returns the synchronized current instant.
func (s *Store) CurrentTime(ctx context.Context) time.Time {
	if s.times != nil {
		return s.times.Now(ctx)
	}
	return s.clock.Now().UTC()
}

// Refresh runs one pass and publishes its result unless a newer pass has
// already completed. A pass in which every source fails leaves the previous
// feed in place and moves the store to StateError.
func (s *Store) Refresh(ctx context.Context) error {
	return s.runPass(ctx)
}

// RefreshNow cancels the in-flight automatic pass, if any, and runs a new
// pass in its place.
func (s *Store) RefreshNow(ctx context.Context) error {
	s.autoMu.Lock()
	if s.autoCancel != nil {
		s.autoCancel()
		s.autoCancel = nil
	}
	s.autoMu.Unlock()
	return s.runPass(ctx)
}

// Run refreshes immediately and then every interval until ctx is cancelled.
// After a failed pass the next attempt comes sooner, backing off up to the
// interval.
func (s *Store) Run(ctx context.Context) error {
	s.logger.Info("refresh loop started", "interval", s.interval, "sources", len(s.sources))
	s.metrics.RefreshRunning.Set(1)
	defer s.metrics.RefreshRunning.Set(0)

	backoff := min(initialRetryBackoff, s.interval)
	next := s.nextDelay(s.runAutomatic(ctx), &backoff)

	timer := s.clock.NewTimer(next)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh loop stopping", "reason", ctx.Err())
			return nil
		case <-timer.Chan():
		}
		timer.Reset(s.nextDelay(s.runAutomatic(ctx), &backoff))
	}
}

func (s *Store) nextDelay(err error, backoff *time.Duration) time.Duration {
	if err == nil || errors.Is(err, ErrSuperseded) {
		*backoff = min(initialRetryBackoff, s.interval)
		return s.interval
	}
	d := *backoff
	*backoff = retry.NextBackoff(*backoff, s.interval)
	return d
}

func (s *Store) runAutomatic(ctx context.Context) error {
	actx, cancel := context.WithCancel(ctx)
	s.autoMu.Lock()
	s.autoCancel = cancel
	s.autoMu.Unlock()

	defer func() {
		s.autoMu.Lock()
		s.autoCancel = nil
		s.autoMu.Unlock()
		cancel()
	}()

	return s.runPass(actx)
}

func (s *Store) runPass(ctx context.Context) error {
	pass := s.seq.Add(1)
	passID := uuid.NewString()
	logger := s.logger.With("pass", pass, "pass_id", passID)
	start := s.clock.Now()
	s.beginPass(pass)

	feed, report := s.agg.Aggregate(ctx, s.sources, s.query)
	s.metrics.PassDuration.Observe(s.clock.Since(start).Seconds())

	if ctx.Err() != nil {
		s.mu.Lock()
		s.endPass(pass)
		s.mu.Unlock()
		s.metrics.AggregationPasses.WithLabelValues("discarded").Inc()
		logger.Info("pass cancelled, discarding result", "reason", ctx.Err())
		return ErrSuperseded
	}

	passErr := report.Err()
	generated := s.CurrentTime(ctx)

	s.mu.Lock()
	if pass <= s.published {
		s.endPass(pass)
		s.mu.Unlock()
		s.metrics.AggregationPasses.WithLabelValues("discarded").Inc()
		logger.Info("newer pass already published, discarding result")
		return ErrSuperseded
	}
	s.published = pass

	s.status.Pass = pass
	s.status.PassID = passID
	s.status.Sources = sourceStatuses(report)
	if passErr != nil {
		s.settled = StateError
		s.status.Err = passErr.Error()
		s.endPass(pass)
		s.mu.Unlock()

		s.metrics.AggregationPasses.WithLabelValues("failed").Inc()
		logger.Error("aggregation failed, keeping previous feed", "error", passErr)
		return passErr
	}

	s.version++
	feed.Version = s.version
	feed.Pass = pass
	feed.PassID = passID
	feed.GeneratedAt = generated
	if feed.Events == nil {
		feed.Events = []domain.Event{}
	}
	s.feed = feed
	s.settled = StateReady
	s.status.Err = ""
	s.status.LastSuccess = generated
	s.status.HasData = true
	s.endPass(pass)
	s.mu.Unlock()

	outcome := "success"
	if report.Partial() {
		outcome = "partial"
		for _, f := range report.Failed() {
			logger.Warn("source failed in otherwise successful pass", "source", f.Name, "error", f.Err)
		}
	}
	s.metrics.AggregationPasses.WithLabelValues(outcome).Inc()
	s.metrics.FeedSize.Set(float64(feed.Len()))
	logger.Info("feed published", "events", feed.Len(), "version", feed.Version, "duration", s.clock.Since(start))

	s.notify(feed)
	return nil
}

// beginPass moves the store to StateLoading for the duration of pass.
func (s *Store) beginPass(pass uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[pass] = struct{}{}
	s.status.State = StateLoading
}

// endPass must be called with s.mu held. The store stays loading while any
// pass newer than the published one is still running; otherwise it returns
// to the settled state.
func (s *Store) endPass(pass uint64) {
	delete(s.running, pass)
	for p := range s.running {
		if p > s.published {
			s.status.State = StateLoading
			return
		}
	}
	s.status.State = s.settled
}

func sourceStatuses(r aggregate.Report) []SourceStatus {
	out := make([]SourceStatus, len(r.Sources))
	for i, src := range r.Sources {
		out[i] = SourceStatus{Name: src.Name, Events: src.Events}
		if src.Err != nil {
			out[i].Error = src.Err.Error()
		}
	}
	return out
}
