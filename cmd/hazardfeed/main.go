package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/couchcryptid/hazard-feed/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/hazard-feed/internal/adapter/kafka"
	"github.com/couchcryptid/hazard-feed/internal/adapter/openmeteo"
	"github.com/couchcryptid/hazard-feed/internal/adapter/usgs"
	"github.com/couchcryptid/hazard-feed/internal/adapter/worldtime"
	"github.com/couchcryptid/hazard-feed/internal/aggregate"
	"github.com/couchcryptid/hazard-feed/internal/config"
	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/fetch"
	"github.com/couchcryptid/hazard-feed/internal/observability"
	"github.com/couchcryptid/hazard-feed/internal/store"
	"github.com/couchcryptid/hazard-feed/internal/timesync"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()
	thresholds := domain.DefaultThresholds()

	// Synchronized clock.
	times := worldtime.NewClient(fetch.NewClient("worldtime", cfg.FetchTimeout, logger, metrics), cfg.TimeBaseURLs)
	timeCache := timesync.NewCache(times, clock, cfg.TimeTTL, logger, metrics)
	ticker := timesync.NewTicker(timeCache, clock, cfg.TimeTickInterval, cfg.TimeSyncInterval, logger)

	// Event sources.
	sources := []aggregate.Source{
		usgs.NewSource(fetch.NewClient("usgs", cfg.FetchTimeout, logger, metrics), cfg.USGSBaseURL, cfg.USGSFeeds, thresholds, logger),
	}

	geocodingClient := openmeteo.NewGeocodingClient(fetch.NewClient("geocoding", cfg.FetchTimeout, logger, metrics), cfg.GeocodingBaseURLs, logger, metrics)
	geocoder := openmeteo.NewCachedGeocoder(geocodingClient, cfg.GeocodeCacheSize, metrics)

	var weather httpadapter.WeatherReporter
	if cfg.WeatherEnabled {
		forecasts := openmeteo.NewForecastClient(fetch.NewClient("open-meteo", cfg.FetchTimeout, logger, metrics), cfg.OpenMeteoBaseURLs)
		weather = forecasts
		places := toPlaces(cfg.WeatherLocations)
		sources = append(sources, openmeteo.NewSource(forecasts, geocoder, places, thresholds, logger))
		logger.Info("weather source enabled", "locations", len(places))
	} else {
		logger.Info("weather source disabled")
	}

	agg := aggregate.New(clock, logger, metrics)
	st := store.New(agg, sources, store.Options{
		Query:    aggregate.Query{MinMagnitude: cfg.MinMagnitude, Cap: cfg.FeedCap},
		Interval: cfg.RefreshInterval,
		Times:    timeCache,
		Clock:    clock,
	}, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Store:    st,
		Clock:    ticker,
		Zones:    times,
		Weather:  weather,
		Geocoder: geocoder,

		RefreshTimeout: cfg.RefreshTimeout,
	}, logger, metrics)

	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger, metrics)
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Start the synchronized clock.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker.Run(ctx)
	}()

	// Start the refresh loop.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := st.Run(ctx); err != nil {
			logger.Error("refresh loop error", "error", err)
		}
	}()

	// Publish every new feed to Kafka.
	if writer != nil {
		feeds, unsubscribe := st.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer unsubscribe()
			if err := writer.Run(ctx, feeds); err != nil {
				logger.Error("kafka publisher error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	wg.Wait()
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

func toPlaces(locs []config.Location) []domain.Place {
	places := make([]domain.Place, len(locs))
	for i, l := range locs {
		places[i] = domain.Place{Name: l.Name, Country: l.Country, Region: l.Region, Lat: l.Lat, Lon: l.Lon}
	}
	return places
}
