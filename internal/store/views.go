package store

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/domain"
)

// maxCachedViews bounds the memo. Recency views keyed by "now" are unique per
// request, so without a bound the memo would grow for the life of a version.
const maxCachedViews = 128

// viewCache memoizes derived views for one feed version.
type viewCache struct {
	mu       sync.Mutex
	version  uint64
	filtered map[string][]domain.Event
	grouped  map[domain.Category][]domain.Event
	computed int
}

// lookup returns the cached view for key, resetting the memo when the feed
// version changed.
func (c *viewCache) lookup(version uint64, key string) ([]domain.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfStale(version)
	v, ok := c.filtered[key]
	return v, ok
}

func (c *viewCache) store(version uint64, key string, events []domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfStale(version)
	if len(c.filtered) >= maxCachedViews {
		clear(c.filtered)
	}
	c.filtered[key] = events
	c.computed++
}

func (c *viewCache) groupedView(version uint64, events []domain.Event) map[domain.Category][]domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfStale(version)
	if c.grouped == nil {
		c.grouped = domain.GroupByCategory(events)
		c.computed++
	}
	return c.grouped
}

func (c *viewCache) resetIfStale(version uint64) {
	if c.filtered != nil && c.version == version {
		return
	}
	c.version = version
	c.filtered = make(map[string][]domain.Event)
	c.grouped = nil
}

// computations reports how many views were derived rather than served from
// the memo.
func (c *viewCache) computations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.computed
}

// Filter returns the events matching p, memoized per feed version. The
// result must not be modified.
func (s *Store) Filter(p domain.FilterParams) []domain.Event {
	feed := s.Feed()
	key := p.Key()
	if v, ok := s.views.lookup(feed.Version, key); ok {
		return v
	}
	v := p.Apply(feed.Events)
	s.views.store(feed.Version, key, v)
	return v
}

// FilterByCategories returns events in any of categories.
func (s *Store) FilterByCategories(categories []domain.Category) []domain.Event {
	if categories == nil {
		categories = []domain.Category{}
	}
	return s.Filter(domain.FilterParams{Categories: categories})
}

// FilterByMinSeverity returns events at or above minimum.
func (s *Store) FilterByMinSeverity(minimum domain.Severity) []domain.Event {
	return s.Filter(domain.FilterParams{MinSeverity: minimum})
}

// FilterByRecency returns events observed within window of the synchronized
// current time.
func (s *Store) FilterByRecency(ctx context.Context, window time.Duration) []domain.Event {
	if window <= 0 {
		window = domain.DefaultRecencyWindow
	}
	return s.Filter(domain.FilterParams{Now: s.CurrentTime(ctx), Within: window})
}

// Critical returns the critical events of the current feed.
func (s *Store) Critical() []domain.Event {
	return s.FilterByMinSeverity(domain.SeverityCritical)
}

// GroupByCategory returns the current feed bucketed by category. The map is
// a copy; the slices inside are shared and must not be modified.
func (s *Store) GroupByCategory() map[domain.Category][]domain.Event {
	feed := s.Feed()
	return maps.Clone(s.views.groupedView(feed.Version, feed.Events))
}

// Categories lists the categories present in the current feed in display
// order.
func (s *Store) Categories() []domain.Category {
	grouped := s.GroupByCategory()
	out := make([]domain.Category, 0, len(grouped))
	for _, c := range domain.Categories {
		if _, ok := grouped[c]; ok {
			out = append(out, c)
		}
	}
	return slices.Clip(out)
}
