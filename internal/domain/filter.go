package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DefaultRecencyWindow is the "recent events" window.
const DefaultRecencyWindow = time.Hour

// FilterByCategories keeps events whose category is in categories. An empty
// set keeps nothing.
func FilterByCategories(events []Event, categories []Category) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if slices.Contains(categories, e.Category) {
			out = append(out, e)
		}
	}
	return out
}

// FilterByMinSeverity keeps events ranked at or above minimum.
func FilterByMinSeverity(events []Event, minimum Severity) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Severity.AtLeast(minimum) {
			out = append(out, e)
		}
	}
	return out
}

// FilterByRecency keeps events observed strictly after now-window. now is
// supplied by the caller so the result is a pure function of its inputs.
func FilterByRecency(events []Event, now time.Time, window time.Duration) []Event {
	cutoff := now.Add(-window)
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.ObservedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// GroupByCategory buckets events by category, preserving feed order inside
// each bucket.
func GroupByCategory(events []Event) map[Category][]Event {
	grouped := make(map[Category][]Event)
	for _, e := range events {
		grouped[e.Category] = append(grouped[e.Category], e)
	}
	return grouped
}

// FilterParams combines the derivations a consumer can request in one view.
// A nil Categories slice means "all categories"; a zero Within disables the
// recency filter.
type FilterParams struct {
	Categories  []Category
	MinSeverity Severity
	Now         time.Time
	Within      time.Duration
}

// Apply runs the filters in a fixed order: categories, severity, recency.
func (p FilterParams) Apply(events []Event) []Event {
	out := slices.Clone(events)
	if p.Categories != nil {
		out = FilterByCategories(out, p.Categories)
	}
	if p.MinSeverity > SeverityLow {
		out = FilterByMinSeverity(out, p.MinSeverity)
	}
	if p.Within > 0 {
		out = FilterByRecency(out, p.Now, p.Within)
	}
	if out == nil {
		out = []Event{}
	}
	return out
}

// Key is a canonical string for memoizing views by parameters.
func (p FilterParams) Key() string {
	var b strings.Builder
	if p.Categories == nil {
		b.WriteString("*")
	} else {
		cats := make([]string, len(p.Categories))
		for i, c := range p.Categories {
			cats[i] = string(c)
		}
		slices.Sort(cats)
		b.WriteString(strings.Join(slices.Compact(cats), ","))
	}
	fmt.Fprintf(&b, "|%s", p.MinSeverity)
	if p.Within > 0 {
		fmt.Fprintf(&b, "|%d|%d", p.Now.UnixNano(), p.Within)
	}
	return b.String()
}
