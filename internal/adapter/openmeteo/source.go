package openmeteo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/hazard-feed/internal/aggregate"
	"github.com/couchcryptid/hazard-feed/internal/domain"
)

// SourceName is stamped on every event this source produces.
const SourceName = "Open-Meteo"

// Source is an aggregate.Source that derives hazard events from the
// forecasts of a fixed set of monitored places.
type Source struct {
	forecasts  *ForecastClient
	geocoder   domain.Geocoder
	places     []domain.Place
	thresholds domain.Thresholds
	logger     *slog.Logger
}

// NewSource creates the weather source. Places without coordinates are
// resolved through geocoder on each pass; geocoder may be nil when every
// place has coordinates.
func NewSource(forecasts *ForecastClient, geocoder domain.Geocoder, places []domain.Place, th domain.Thresholds, logger *slog.Logger) *Source {
	return &Source{
		forecasts:  forecasts,
		geocoder:   geocoder,
		places:     places,
		thresholds: th,
		logger:     logger,
	}
}

func (s *Source) Name() string { return "open-meteo" }

// Places returns the monitored places as configured.
func (s *Source) Places() []domain.Place { return s.places }

// Collect fetches every place's forecast concurrently. It fails only when
// every place fails; otherwise failed places are logged and skipped.
func (s *Source) Collect(ctx context.Context, _ aggregate.Query) ([]domain.Event, error) {
	if len(s.places) == 0 {
		return nil, nil
	}

	perPlace := make([][]domain.Event, len(s.places))
	errs := make([]error, len(s.places))

	var wg sync.WaitGroup
	for i, p := range s.places {
		wg.Add(1)
		go func() {
			defer wg.Done()
			perPlace[i], errs[i] = s.collectPlace(ctx, p)
		}()
	}
	wg.Wait()

	var events []domain.Event
	var failed []error
	for i := range s.places {
		if errs[i] != nil {
			s.logger.Warn("weather place failed", "place", s.places[i].Name, "error", errs[i])
			failed = append(failed, errs[i])
			continue
		}
		events = append(events, perPlace[i]...)
	}

	if len(failed) == len(s.places) {
		return nil, errors.Join(failed...)
	}
	return events, nil
}

func (s *Source) collectPlace(ctx context.Context, p domain.Place) ([]domain.Event, error) {
	place, err := s.resolve(ctx, p)
	if err != nil {
		return nil, err
	}
	f, err := s.forecasts.Forecast(ctx, place.Lat, place.Lon)
	if err != nil {
		return nil, err
	}
	return domain.NormalizeForecast(f, place, SourceName, s.thresholds), nil
}

// resolve fills in coordinates for a place configured by name only.
func (s *Source) resolve(ctx context.Context, p domain.Place) (domain.Place, error) {
	if p.HasCoordinates() {
		return p, nil
	}
	if s.geocoder == nil {
		return p, fmt.Errorf("place %q has no coordinates and geocoding is disabled", p.Name)
	}
	matches, err := s.geocoder.SearchPlaces(ctx, p.Name, 1)
	if err != nil {
		return p, err
	}
	if len(matches) == 0 {
		return p, fmt.Errorf("place %q: %w: no geocoding match", p.Name, domain.ErrNoDataAvailable)
	}
	return matches[0], nil
}
