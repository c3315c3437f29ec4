package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/adapter/worldtime"
	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/observability"
	"github.com/couchcryptid/hazard-feed/internal/store"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FeedStore is the published feed and its derived views.
type FeedStore interface {
	sharedobs.ReadinessChecker
	Feed() domain.Feed
	Status() store.Status
	Filter(p domain.FilterParams) []domain.Event
	GroupByCategory() map[domain.Category][]domain.Event
	CurrentTime(ctx context.Context) time.Time
	RefreshNow(ctx context.Context) error
	Subscribe() (<-chan domain.Feed, func())
}

// DisplayClock is the locally ticking synchronized clock.
type DisplayClock interface {
	Current() time.Time
	LastError() error
}

// ZoneClock answers per-timezone time lookups.
type ZoneClock interface {
	FetchZone(ctx context.Context, zone string) (worldtime.ZoneTime, error)
	Timezones(ctx context.Context) ([]string, error)
}

// WeatherReporter builds the weather report for a resolved place.
type WeatherReporter interface {
	Report(ctx context.Context, place domain.Place, updated time.Time) (domain.WeatherReport, error)
}

// DefaultRefreshTimeout bounds a manual refresh when Deps.RefreshTimeout is
// unset.
const DefaultRefreshTimeout = 25 * time.Second

// writeTimeoutMargin leaves room to encode the refresh response after the
// pass deadline.
const writeTimeoutMargin = 5 * time.Second

// Deps are the services behind the API. Store is required; a nil optional
// dependency disables its routes with 503.
type Deps struct {
	Store    FeedStore
	Clock    DisplayClock
	Zones    ZoneClock
	Weather  WeatherReporter
	Geocoder domain.Geocoder

	// RefreshTimeout bounds POST /api/v1/refresh. The server's write
	// timeout is derived from it.
	RefreshTimeout time.Duration
}

// Server exposes the feed API, the feed stream, and the health, readiness
// and metrics endpoints.
type Server struct {
	httpServer     *http.Server
	deps           Deps
	refreshTimeout time.Duration
	upgrader       websocket.Upgrader
	logger         *slog.Logger
	metrics        *observability.Metrics

	// done is closed on Shutdown to end streams, which the http.Server does
	// not track once hijacked.
	done     chan struct{}
	doneOnce sync.Once
}

// NewServer creates the HTTP server and registers every route.
func NewServer(addr string, deps Deps, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()
	refreshTimeout := deps.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = DefaultRefreshTimeout
	}

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// Manual refresh waits for a whole aggregation pass.
			WriteTimeout: refreshTimeout + writeTimeoutMargin,
			IdleTimeout:  60 * time.Second,
		},
		deps:           deps,
		refreshTimeout: refreshTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		metrics: metrics,
		done:    make(chan struct{}),
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Store))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/feed", s.handleFeed)
	mux.HandleFunc("GET /api/v1/feed/filtered", s.handleFilteredFeed)
	mux.HandleFunc("GET /api/v1/feed/critical", s.handleCriticalFeed)
	mux.HandleFunc("GET /api/v1/feed/recent", s.handleRecentFeed)
	mux.HandleFunc("GET /api/v1/feed/grouped", s.handleGroupedFeed)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("POST /api/v1/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/v1/time", s.handleTime)
	mux.HandleFunc("GET /api/v1/timezones", s.handleTimezones)
	mux.HandleFunc("GET /api/v1/weather", s.handleWeather)
	mux.HandleFunc("GET /api/v1/locations", s.handleLocations)
	mux.HandleFunc("GET /ws/feed", s.handleStream)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown closes open feed streams and gracefully drains connections within
// the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
