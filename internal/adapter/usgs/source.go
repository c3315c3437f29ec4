// Package usgs collects earthquakes from the USGS GeoJSON summary feeds.
package usgs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/couchcryptid/hazard-feed/internal/aggregate"
	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/fetch"
	geojson "github.com/paulmach/go.geojson"
)

const (
	DefaultBaseURL = "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary"

	// SourceName is stamped on every event this source produces.
	SourceName = "USGS"
)

// DefaultFeeds are tried in order: everything from the past day, then the
// smaller M2.5+ and M1.0+ summaries.
var DefaultFeeds = []string{"all_day", "2.5_day", "1.0_day"}

// Source is an aggregate.Source over the USGS summary feeds.
type Source struct {
	fetcher    *fetch.Client
	baseURL    string
	feeds      []string
	thresholds domain.Thresholds
	logger     *slog.Logger
}

// NewSource creates the seismic source. Empty baseURL or feeds use the
// defaults.
func NewSource(fetcher *fetch.Client, baseURL string, feeds []string, th domain.Thresholds, logger *slog.Logger) *Source {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if len(feeds) == 0 {
		feeds = DefaultFeeds
	}
	return &Source{
		fetcher:    fetcher,
		baseURL:    strings.TrimRight(baseURL, "/"),
		feeds:      feeds,
		thresholds: th,
		logger:     logger,
	}
}

func (s *Source) Name() string { return "usgs" }

// Collect fetches the first non-empty feed and normalizes every feature at or
// above q.MinMagnitude. Features with an unknown magnitude are dropped.
func (s *Source) Collect(ctx context.Context, q aggregate.Query) ([]domain.Event, error) {
	fc, err := fetch.FetchJSON(ctx, s.fetcher, s.endpoints(), hasFeatures)
	if err != nil {
		return nil, fmt.Errorf("fetch earthquakes: %w", err)
	}

	events := make([]domain.Event, 0, len(fc.Features))
	dropped := 0
	for _, f := range fc.Features {
		if !domain.PassesMagnitude(f, q.MinMagnitude) {
			dropped++
			continue
		}
		events = append(events, domain.NormalizeSeismicFeature(f, SourceName, s.thresholds))
	}

	s.logger.Debug("earthquakes collected", "features", len(fc.Features), "kept", len(events), "dropped", dropped)
	return events, nil
}

func (s *Source) endpoints() []string {
	out := make([]string, len(s.feeds))
	for i, feed := range s.feeds {
		out[i] = fmt.Sprintf("%s/%s.geojson", s.baseURL, feed)
	}
	return out
}

func hasFeatures(fc geojson.FeatureCollection) bool {
	return len(fc.Features) > 0
}
