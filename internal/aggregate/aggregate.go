// Package aggregate runs all event sources for one pass and merges their
// results into a single ranked feed.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/observability"
	"github.com/jonboulle/clockwork"
)

const (
	// DefaultCap is the maximum number of events in a feed.
	DefaultCap = 30
	// DefaultMinMagnitude drops near-zero seismic noise.
	DefaultMinMagnitude = 0.5
)

// Query carries the per-pass parameters handed to every source.
type Query struct {
	MinMagnitude float64
	Cap          int
}

// DefaultQuery returns the query used when nothing is configured.
func DefaultQuery() Query {
	return Query{MinMagnitude: DefaultMinMagnitude, Cap: DefaultCap}
}

// Source produces normalized events from one upstream.
type Source interface {
	Name() string
	Collect(ctx context.Context, q Query) ([]domain.Event, error)
}

// SourceResult describes how one source fared in a pass.
type SourceResult struct {
	Name     string        `json:"name"`
	Events   int           `json:"events"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Report summarizes a pass, one entry per source in source order.
type Report struct {
	Sources []SourceResult
}

// Failed returns the sources that returned an error.
func (r Report) Failed() []SourceResult {
	var out []SourceResult
	for _, s := range r.Sources {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Partial reports whether some, but not all, sources failed.
func (r Report) Partial() bool {
	n := len(r.Failed())
	return n > 0 && n < len(r.Sources)
}

// Err returns an error matching domain.ErrAggregationFailed when no source
// succeeded, wrapping every source error. It is nil otherwise.
func (r Report) Err() error {
	if len(r.Sources) == 0 {
		return fmt.Errorf("%w: no sources configured", domain.ErrAggregationFailed)
	}
	failed := r.Failed()
	if len(failed) < len(r.Sources) {
		return nil
	}
	errs := make([]error, 0, len(failed))
	for _, s := range failed {
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, s.Err))
	}
	return fmt.Errorf("%w: %w", domain.ErrAggregationFailed, errors.Join(errs...))
}

// Aggregator fans a pass out to sources and merges the results.
type Aggregator struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an Aggregator.
func New(clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Aggregator {
	return &Aggregator{clock: clock, logger: logger, metrics: metrics}
}

// Aggregate runs every source concurrently and waits for all of them. The
// merged events are deduplicated by ID (a later source's event replaces an
// earlier one and takes its position), stable-sorted newest first and
// truncated to q.Cap. When every source fails the feed is empty and
// Report.Err is non-nil.
func (a *Aggregator) Aggregate(ctx context.Context, sources []Source, q Query) (domain.Feed, Report) {
	if q.Cap <= 0 {
		q.Cap = DefaultCap
	}

	results := make([]SourceResult, len(sources))
	collected := make([][]domain.Event, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collected[i], results[i] = a.collect(ctx, src, q)
		}()
	}
	wg.Wait()

	report := Report{Sources: results}
	feed := domain.Feed{
		Events:      rank(merge(collected), q.Cap),
		GeneratedAt: a.clock.Now().UTC(),
	}
	return feed, report
}

func (a *Aggregator) collect(ctx context.Context, src Source, q Query) (events []domain.Event, res SourceResult) {
	start := a.clock.Now()
	res.Name = src.Name()

	defer func() {
		if r := recover(); r != nil {
			events = nil
			res.Err = fmt.Errorf("source panicked: %v", r)
		}
		res.Duration = a.clock.Since(start)
		if res.Err != nil {
			a.logger.Warn("source failed", "source", res.Name, "error", res.Err, "duration", res.Duration)
			return
		}
		res.Events = len(events)
		a.metrics.SourceEvents.WithLabelValues(res.Name).Add(float64(len(events)))
		a.logger.Debug("source collected", "source", res.Name, "events", len(events), "duration", res.Duration)
	}()

	events, res.Err = src.Collect(ctx, q)
	if res.Err != nil {
		events = nil
	}
	return events, res
}

// merge concatenates per-source events in source order. For a repeated ID
// only the last occurrence survives, at its own position. Events without an
// ID are never merged.
func merge(perSource [][]domain.Event) []domain.Event {
	var all []domain.Event
	for _, events := range perSource {
		all = append(all, events...)
	}

	last := make(map[string]int, len(all))
	for i, e := range all {
		if e.ID != "" {
			last[e.ID] = i
		}
	}

	out := make([]domain.Event, 0, len(last))
	for i, e := range all {
		if e.ID != "" && last[e.ID] != i {
			continue
		}
		out = append(out, e)
	}
	return out
}

// rank stable-sorts events newest first and keeps at most limit of them.
func rank(events []domain.Event, limit int) []domain.Event {
	slices.SortStableFunc(events, func(a, b domain.Event) int {
		return b.ObservedAt.Compare(a.ObservedAt)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events
}
