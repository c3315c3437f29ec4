package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/store"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const maxLocationResults = 10

type feedResponse struct {
	Events      []domain.Event `json:"events"`
	Count       int            `json:"count"`
	Version     uint64         `json:"version"`
	PassID      string         `json:"pass_id,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
	State       store.State    `json:"state"`
}

type groupedResponse struct {
	Categories  map[domain.Category][]domain.Event `json:"categories"`
	Version     uint64                             `json:"version"`
	GeneratedAt time.Time                          `json:"generated_at"`
	State       store.State                        `json:"state"`
}

type timeResponse struct {
	Now       time.Time `json:"now"`
	Synced    bool      `json:"synced"`
	SyncError string    `json:"sync_error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleFeed serves the whole feed, narrowed by the optional categories,
// min_severity and within query parameters.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	p, err := s.filterParams(r, domain.FilterParams{})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeFeed(w, p)
}

// handleFilteredFeed is handleFeed with the default category selection and a
// medium severity floor.
func (s *Server) handleFilteredFeed(w http.ResponseWriter, r *http.Request) {
	p, err := s.filterParams(r, domain.FilterParams{
		Categories:  domain.DefaultCategories,
		MinSeverity: domain.SeverityMedium,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeFeed(w, p)
}

func (s *Server) handleCriticalFeed(w http.ResponseWriter, _ *http.Request) {
	s.writeFeed(w, domain.FilterParams{MinSeverity: domain.SeverityCritical})
}

func (s *Server) handleRecentFeed(w http.ResponseWriter, r *http.Request) {
	p, err := s.filterParams(r, domain.FilterParams{Within: domain.DefaultRecencyWindow})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeFeed(w, p)
}

func (s *Server) handleGroupedFeed(w http.ResponseWriter, _ *http.Request) {
	feed := s.deps.Store.Feed()
	sharedobs.WriteJSON(w, http.StatusOK, groupedResponse{
		Categories:  s.deps.Store.GroupByCategory(),
		Version:     feed.Version,
		GeneratedAt: feed.GeneratedAt,
		State:       s.deps.Store.Status().State,
	})
}

func (s *Server) writeFeed(w http.ResponseWriter, p domain.FilterParams) {
	feed := s.deps.Store.Feed()
	events := s.deps.Store.Filter(p)
	sharedobs.WriteJSON(w, http.StatusOK, feedResponse{
		Events:      events,
		Count:       len(events),
		Version:     feed.Version,
		PassID:      feed.PassID,
		GeneratedAt: feed.GeneratedAt,
		State:       s.deps.Store.Status().State,
	})
}

// filterParams overlays the request's query parameters on defaults.
func (s *Server) filterParams(r *http.Request, p domain.FilterParams) (domain.FilterParams, error) {
	q := r.URL.Query()

	if q.Has("categories") {
		cats, err := parseCategories(q.Get("categories"))
		if err != nil {
			return p, err
		}
		p.Categories = cats
	}
	if v := q.Get("min_severity"); v != "" {
		sev, err := domain.ParseSeverity(v)
		if err != nil {
			return p, err
		}
		p.MinSeverity = sev
	}
	if v := q.Get("within"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return p, fmt.Errorf("invalid within %q: must be a positive duration", v)
		}
		p.Within = d
	}
	if p.Within > 0 {
		p.Now = s.deps.Store.CurrentTime(r.Context())
	}
	return p, nil
}

func parseCategories(v string) ([]domain.Category, error) {
	cats := []domain.Category{}
	for _, name := range strings.Split(v, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		c, ok := domain.ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		cats = append(cats, c)
	}
	return cats, nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.deps.Store.Status())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.refreshTimeout)
	defer cancel()

	err := s.deps.Store.RefreshNow(ctx)
	switch {
	case err == nil:
		sharedobs.WriteJSON(w, http.StatusOK, s.deps.Store.Status())
	case errors.Is(err, store.ErrSuperseded) && errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.logger.Warn("manual refresh timed out", "timeout", s.refreshTimeout)
		writeError(w, http.StatusGatewayTimeout, fmt.Errorf("refresh did not finish within %s", s.refreshTimeout))
	case errors.Is(err, store.ErrSuperseded):
		writeError(w, http.StatusConflict, err)
	default:
		s.logger.Warn("manual refresh failed", "error", err)
		sharedobs.WriteJSON(w, http.StatusBadGateway, s.deps.Store.Status())
	}
}

// handleTime serves the synchronized clock, or the time in ?zone= when set.
func (s *Server) handleTime(w http.ResponseWriter, r *http.Request) {
	if zone := r.URL.Query().Get("zone"); zone != "" {
		if s.deps.Zones == nil {
			writeError(w, http.StatusServiceUnavailable, errors.New("timezone lookup is disabled"))
			return
		}
		zt, err := s.deps.Zones.FetchZone(r.Context(), zone)
		if err != nil {
			writeError(w, upstreamStatus(err), err)
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, zt)
		return
	}

	if s.deps.Clock == nil {
		sharedobs.WriteJSON(w, http.StatusOK, timeResponse{Now: s.deps.Store.CurrentTime(r.Context()), Synced: true})
		return
	}
	resp := timeResponse{Now: s.deps.Clock.Current(), Synced: true}
	if err := s.deps.Clock.LastError(); err != nil {
		resp.Synced = false
		resp.SyncError = err.Error()
	}
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTimezones(w http.ResponseWriter, r *http.Request) {
	if s.deps.Zones == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("timezone lookup is disabled"))
		return
	}
	zones, err := s.deps.Zones.Timezones(r.Context())
	if err != nil {
		writeError(w, upstreamStatus(err), err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, zones)
}

// handleWeather serves the report for ?lat=&lon= or, failing that, the best
// geocoding match for ?name=.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if s.deps.Weather == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("weather is disabled"))
		return
	}

	place, status, err := s.resolvePlace(r)
	if err != nil {
		writeError(w, status, err)
		return
	}

	report, err := s.deps.Weather.Report(r.Context(), place, s.deps.Store.CurrentTime(r.Context()))
	if err != nil {
		writeError(w, upstreamStatus(err), err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, report)
}

func (s *Server) resolvePlace(r *http.Request) (domain.Place, int, error) {
	q := r.URL.Query()
	if q.Has("lat") || q.Has("lon") {
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
		if latErr != nil || lonErr != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return domain.Place{}, http.StatusBadRequest, errors.New("lat and lon must be valid coordinates")
		}
		name := q.Get("name")
		if name == "" {
			name = fmt.Sprintf("%.2f, %.2f", lat, lon)
		}
		return domain.Place{Name: name, Lat: lat, Lon: lon}, 0, nil
	}

	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		return domain.Place{}, http.StatusBadRequest, errors.New("name or lat and lon are required")
	}
	if s.deps.Geocoder == nil {
		return domain.Place{}, http.StatusServiceUnavailable, errors.New("geocoding is disabled")
	}
	matches, err := s.deps.Geocoder.SearchPlaces(r.Context(), name, 1)
	if err != nil {
		return domain.Place{}, upstreamStatus(err), err
	}
	if len(matches) == 0 {
		return domain.Place{}, http.StatusNotFound, fmt.Errorf("no location matches %q", name)
	}
	return matches[0], 0, nil
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Geocoder == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("geocoding is disabled"))
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, errors.New("q is required"))
		return
	}
	count := 5
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid count %q", v))
			return
		}
		count = min(n, maxLocationResults)
	}

	places, err := s.deps.Geocoder.SearchPlaces(r.Context(), q, count)
	if err != nil {
		writeError(w, upstreamStatus(err), err)
		return
	}
	if places == nil {
		places = []domain.Place{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, places)
}

// upstreamStatus maps fetch failures to a gateway status.
func upstreamStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrRejected) && !errors.Is(err, domain.ErrNoDataAvailable):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoDataAvailable),
		errors.Is(err, domain.ErrTransport),
		errors.Is(err, domain.ErrParse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, errorResponse{Error: err.Error()})
}
