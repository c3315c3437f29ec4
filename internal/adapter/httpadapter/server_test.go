package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/adapter/httpadapter"
	"github.com/couchcryptid/hazard-feed/internal/adapter/worldtime"
	"github.com/couchcryptid/hazard-feed/internal/aggregate"
	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/observability"
	"github.com/couchcryptid/hazard-feed/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var syncedNow = time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)

// --- fakes ---

type fakeAggregator struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
	// hang makes Aggregate wait for its context to end.
	hang bool
}

func (f *fakeAggregator) set(events []domain.Event, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events, f.err = events, err
}

func (f *fakeAggregator) setHang(hang bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hang = hang
}

func (f *fakeAggregator) Aggregate(ctx context.Context, _ []aggregate.Source, _ aggregate.Query) (domain.Feed, aggregate.Report) {
	f.mu.Lock()
	hang := f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return domain.Feed{}, aggregate.Report{Sources: []aggregate.SourceResult{{Name: "usgs", Err: ctx.Err()}}}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Feed{}, aggregate.Report{Sources: []aggregate.SourceResult{{Name: "usgs", Err: f.err}}}
	}
	return domain.Feed{Events: f.events}, aggregate.Report{Sources: []aggregate.SourceResult{{Name: "usgs", Events: len(f.events)}}}
}

type fixedTimes struct{}

func (fixedTimes) Now(context.Context) time.Time { return syncedNow }

type fakeClock struct {
	now time.Time
	err error
}

func (c fakeClock) Current() time.Time { return c.now }
func (c fakeClock) LastError() error   { return c.err }

type fakeZones struct {
	zones []string
	err   error
}

func (z fakeZones) FetchZone(_ context.Context, zone string) (worldtime.ZoneTime, error) {
	if z.err != nil {
		return worldtime.ZoneTime{}, z.err
	}
	return worldtime.ZoneTime{Zone: zone, UTCDatetime: syncedNow, UTCOffset: "+02:00"}, nil
}

func (z fakeZones) Timezones(context.Context) ([]string, error) { return z.zones, z.err }

type fakeWeather struct {
	mu    sync.Mutex
	place domain.Place
	err   error
}

func (f *fakeWeather) Report(_ context.Context, place domain.Place, updated time.Time) (domain.WeatherReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.place = place
	if f.err != nil {
		return domain.WeatherReport{}, f.err
	}
	return domain.WeatherReport{Place: place, LastUpdated: updated}, nil
}

type fakeGeocoder struct {
	places []domain.Place
	err    error
}

func (g fakeGeocoder) SearchPlaces(_ context.Context, _ string, count int) ([]domain.Place, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.places[:min(count, len(g.places))], nil
}

// --- fixture ---

type fixture struct {
	srv     *httpadapter.Server
	store   *store.Store
	agg     *fakeAggregator
	weather *fakeWeather
}

func sampleEvents() []domain.Event {
	return []domain.Event{
		{ID: "quake-1", Category: domain.CategorySeismic, Severity: domain.SeverityCritical, ObservedAt: syncedNow.Add(-10 * time.Minute), Title: "M 7.2"},
		{ID: "flood-1", Category: domain.CategoryFlood, Severity: domain.SeverityHigh, ObservedAt: syncedNow.Add(-30 * time.Minute), Title: "Flood risk"},
		{ID: "heat-1", Category: domain.CategoryExtremeHeat, Severity: domain.SeverityMedium, ObservedAt: syncedNow.Add(-2 * time.Hour), Title: "Heat"},
		{ID: "quake-2", Category: domain.CategorySeismic, Severity: domain.SeverityLow, ObservedAt: syncedNow.Add(-3 * time.Hour), Title: "M 3.0"},
	}
}

func newFixture(t *testing.T, mutate func(*httpadapter.Deps)) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	agg := &fakeAggregator{events: sampleEvents()}
	st := store.New(agg, nil, store.Options{Times: fixedTimes{}, Clock: clockwork.NewFakeClockAt(syncedNow)}, logger, metrics)
	weather := &fakeWeather{}

	deps := httpadapter.Deps{
		Store:   st,
		Clock:   fakeClock{now: syncedNow},
		Zones:   fakeZones{zones: []string{"Europe/Paris", "UTC"}},
		Weather: weather,
		Geocoder: fakeGeocoder{places: []domain.Place{
			{Name: "Austin", Country: "US", Region: "Texas", Lat: 30.2672, Lon: -97.7431},
			{Name: "Austin", Country: "US", Region: "Minnesota", Lat: 43.6666, Lon: -92.9746},
		}},
	}
	if mutate != nil {
		mutate(&deps)
	}
	return fixture{
		srv:     httpadapter.NewServer(":0", deps, logger, metrics),
		store:   st,
		agg:     agg,
		weather: weather,
	}
}

func (f fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type feedBody struct {
	Events []struct {
		ID       string `json:"id"`
		Category string `json:"category"`
		Severity string `json:"severity"`
	} `json:"events"`
	Count   int    `json:"count"`
	Version uint64 `json:"version"`
	State   string `json:"state"`
}

func (b feedBody) ids() []string {
	out := make([]string, len(b.Events))
	for i, e := range b.Events {
		out[i] = e.ID
	}
	return out
}

// --- health ---

func TestHealthzReturns200(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])
}

func TestReadyzTracksFirstSuccessfulPass(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "not ready", decode[map[string]string](t, rec)["status"])

	require.NoError(t, f.store.Refresh(context.Background()))

	rec = f.do(t, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

// --- feed ---

func TestFeed_BeforeFirstPass(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/v1/feed")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[feedBody](t, rec)
	assert.Empty(t, body.Events)
	assert.Equal(t, "loading", body.State)
	assert.Contains(t, rec.Body.String(), `"events":[]`)
}

func TestFeed_Views(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Refresh(context.Background()))

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"whole feed", "/api/v1/feed", []string{"quake-1", "flood-1", "heat-1", "quake-2"}},
		{"categories", "/api/v1/feed?categories=seismic", []string{"quake-1", "quake-2"}},
		{"multiple categories", "/api/v1/feed?categories=flood,%20extreme-heat", []string{"flood-1", "heat-1"}},
		{"empty categories keeps nothing", "/api/v1/feed?categories=", []string{}},
		{"min severity", "/api/v1/feed?min_severity=high", []string{"quake-1", "flood-1"}},
		{"within", "/api/v1/feed?within=1h", []string{"quake-1", "flood-1"}},
		{"combined", "/api/v1/feed?categories=seismic&min_severity=medium&within=6h", []string{"quake-1"}},
		{"filtered defaults", "/api/v1/feed/filtered", []string{"quake-1", "flood-1"}},
		{"filtered override", "/api/v1/feed/filtered?categories=extreme-heat", []string{"heat-1"}},
		{"critical", "/api/v1/feed/critical", []string{"quake-1"}},
		{"recent", "/api/v1/feed/recent", []string{"quake-1", "flood-1"}},
		{"recent custom window", "/api/v1/feed/recent?within=150m", []string{"quake-1", "flood-1", "heat-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tt.target)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			body := decode[feedBody](t, rec)
			assert.Equal(t, tt.want, body.ids())
			assert.Equal(t, len(tt.want), body.Count)
			assert.Equal(t, uint64(1), body.Version)
			assert.Equal(t, "ready", body.State)
		})
	}
}

func TestFeed_InvalidParams(t *testing.T) {
	f := newFixture(t, nil)

	for _, target := range []string{
		"/api/v1/feed?categories=seismic,meteor",
		"/api/v1/feed?min_severity=apocalyptic",
		"/api/v1/feed?within=soon",
		"/api/v1/feed?within=-1h",
		"/api/v1/feed/recent?within=0s",
	} {
		t.Run(target, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestFeed_SeverityEncodedAsName(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Refresh(context.Background()))

	body := decode[feedBody](t, f.do(t, http.MethodGet, "/api/v1/feed/critical"))
	require.Len(t, body.Events, 1)
	assert.Equal(t, "critical", body.Events[0].Severity)
	assert.Equal(t, "seismic", body.Events[0].Category)
}

func TestFeed_Grouped(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Refresh(context.Background()))

	rec := f.do(t, http.MethodGet, "/api/v1/feed/grouped")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Categories map[string][]struct {
			ID string `json:"id"`
		} `json:"categories"`
		Version uint64 `json:"version"`
	}](t, rec)

	assert.Len(t, body.Categories, 3)
	require.Len(t, body.Categories["seismic"], 2)
	assert.Equal(t, "quake-1", body.Categories["seismic"][0].ID)
	assert.Equal(t, "quake-2", body.Categories["seismic"][1].ID)
	assert.Equal(t, uint64(1), body.Version)
}

// --- status and refresh ---

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Refresh(context.Background()))

	rec := f.do(t, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ready", body["state"])
	assert.Equal(t, true, body["has_data"])
	assert.EqualValues(t, 1, body["pass"])
	assert.NotEmpty(t, body["pass_id"])
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]any](t, rec)["state"])
	assert.Len(t, f.store.Feed().Events, 4)
}

func TestRefresh_FailureKeepsFeed(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Refresh(context.Background()))
	f.agg.set(nil, errors.New("usgs down"))

	rec := f.do(t, http.MethodPost, "/api/v1/refresh")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, "error", body["state"])
	assert.Equal(t, true, body["has_data"])
	assert.Contains(t, body["error"], "usgs down")

	feed := decode[feedBody](t, f.do(t, http.MethodGet, "/api/v1/feed"))
	assert.Len(t, feed.Events, 4)
	assert.Equal(t, "error", feed.State)
}

func TestRefresh_TimesOutBeforeWriteDeadline(t *testing.T) {
	f := newFixture(t, func(d *httpadapter.Deps) { d.RefreshTimeout = 20 * time.Millisecond })
	require.NoError(t, f.store.Refresh(context.Background()))
	f.agg.setHang(true)

	rec := f.do(t, http.MethodPost, "/api/v1/refresh")
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "did not finish within 20ms")

	st := f.store.Status()
	assert.Equal(t, store.StateReady, st.State, "timed out pass is discarded")
	assert.Len(t, f.store.Feed().Events, 4)
}

func TestRefresh_RequiresPost(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/v1/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// --- time ---

func TestTime(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/v1/time")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, syncedNow.Format(time.RFC3339), body["now"])
	assert.Equal(t, true, body["synced"])
}

func TestTime_SyncFailureReported(t *testing.T) {
	f := newFixture(t, func(d *httpadapter.Deps) {
		d.Clock = fakeClock{now: syncedNow, err: errors.New("time server unreachable")}
	})

	body := decode[map[string]any](t, f.do(t, http.MethodGet, "/api/v1/time"))
	assert.Equal(t, false, body["synced"])
	assert.Equal(t, "time server unreachable", body["sync_error"])
}

func TestTime_Zone(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/v1/time?zone=Europe/Paris")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Europe/Paris", body["timezone"])
	assert.Equal(t, "+02:00", body["utc_offset"])
}

func TestTime_ZoneUpstreamFailure(t *testing.T) {
	f := newFixture(t, func(d *httpadapter.Deps) {
		d.Zones = fakeZones{err: fmt.Errorf("fetch time: %w", domain.ErrNoDataAvailable)}
	})

	assert.Equal(t, http.StatusBadGateway, f.do(t, http.MethodGet, "/api/v1/time?zone=Mars/Olympus").Code)
	assert.Equal(t, http.StatusBadGateway, f.do(t, http.MethodGet, "/api/v1/timezones").Code)
}

func TestTimezones(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/v1/timezones")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Europe/Paris", "UTC"}, decode[[]string](t, rec))
}

func TestTime_ZonesDisabled(t *testing.T) {
	f := newFixture(t, func(d *httpadapter.Deps) { d.Zones = nil })

	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/v1/timezones").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/api/v1/time?zone=UTC").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/time").Code)
}

// --- weather and locations ---

func TestWeather_ByCoordinates(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/v1/weather?lat=35.3395&lon=-97.4867")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "35.34, -97.49", f.weather.place.Name)
	assert.InDelta(t, 35.3395, f.weather.place.Lat, 1e-9)

	body := decode[map[string]any](t, rec)
	assert.Equal(t, syncedNow.Format(time.RFC3339), body["last_updated"], "stamped with the synchronized time")
}

func TestWeather_ByName(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/v1/weather?name=Austin")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Texas", f.weather.place.Region, "the best match is used")
}

func TestWeather_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*httpadapter.Deps)
		target string
		want   int
	}{
		{"missing params", nil, "/api/v1/weather", http.StatusBadRequest},
		{"bad latitude", nil, "/api/v1/weather?lat=95&lon=0", http.StatusBadRequest},
		{"lon without lat", nil, "/api/v1/weather?lon=10", http.StatusBadRequest},
		{"no match", func(d *httpadapter.Deps) { d.Geocoder = fakeGeocoder{} }, "/api/v1/weather?name=Atlantis", http.StatusNotFound},
		{"weather disabled", func(d *httpadapter.Deps) { d.Weather = nil }, "/api/v1/weather?lat=1&lon=1", http.StatusServiceUnavailable},
		{"geocoding disabled", func(d *httpadapter.Deps) { d.Geocoder = nil }, "/api/v1/weather?name=Austin", http.StatusServiceUnavailable},
		{
			"upstream failure",
			func(d *httpadapter.Deps) {
				d.Weather = &fakeWeather{err: fmt.Errorf("forecast: %w", domain.ErrNoDataAvailable)}
			},
			"/api/v1/weather?lat=1&lon=1",
			http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.mutate)
			rec := f.do(t, http.MethodGet, tt.target)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestLocations(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/locations?q=Austin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Place](t, rec), 2)

	rec = f.do(t, http.MethodGet, "/api/v1/locations?q=Austin&count=1")
	require.Equal(t, http.StatusOK, rec.Code)
	places := decode[[]domain.Place](t, rec)
	require.Len(t, places, 1)
	assert.Equal(t, "Texas", places[0].Region)
}

func TestLocations_Errors(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/locations").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/v1/locations?q=Austin&count=zero").Code)

	f = newFixture(t, func(d *httpadapter.Deps) {
		d.Geocoder = fakeGeocoder{err: fmt.Errorf("geocode: %w", domain.ErrTransport)}
	})
	assert.Equal(t, http.StatusBadGateway, f.do(t, http.MethodGet, "/api/v1/locations?q=Austin").Code)
}

func TestLocations_NoMatchesIsEmptyList(t *testing.T) {
	f := newFixture(t, func(d *httpadapter.Deps) { d.Geocoder = fakeGeocoder{} })
	rec := f.do(t, http.MethodGet, "/api/v1/locations?q=Atlantis")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}
