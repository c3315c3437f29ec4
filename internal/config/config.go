package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	FetchTimeout    time.Duration
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
	FeedCap         int
	MinMagnitude    float64

	// Time synchronization.
	TimeBaseURLs     []string
	TimeTTL          time.Duration
	TimeSyncInterval time.Duration
	TimeTickInterval time.Duration

	USGSBaseURL string
	USGSFeeds   []string

	// Weather and geocoding.
	WeatherEnabled    bool
	OpenMeteoBaseURLs []string
	GeocodingBaseURLs []string
	GeocodeCacheSize  int
	WeatherLocations  []Location

	// Kafka feed publishing.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaTopic         string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		TimeBaseURLs:      parseList(sharedcfg.EnvOrDefault("TIME_BASE_URLS", "https://worldtimeapi.org/api")),
		USGSBaseURL:       sharedcfg.EnvOrDefault("USGS_BASE_URL", "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary"),
		USGSFeeds:         parseList(sharedcfg.EnvOrDefault("USGS_FEEDS", "all_day,2.5_day,1.0_day")),
		OpenMeteoBaseURLs: parseList(sharedcfg.EnvOrDefault("OPEN_METEO_BASE_URLS", "https://api.open-meteo.com/v1")),
		GeocodingBaseURLs: parseList(sharedcfg.EnvOrDefault("GEOCODING_BASE_URLS", "https://geocoding-api.open-meteo.com/v1")),
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:        sharedcfg.EnvOrDefault("KAFKA_TOPIC", "hazard-feed"),
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"FETCH_TIMEOUT", 8 * time.Second, &cfg.FetchTimeout},
		{"REFRESH_INTERVAL", 60 * time.Second, &cfg.RefreshInterval},
		{"REFRESH_TIMEOUT", 25 * time.Second, &cfg.RefreshTimeout},
		{"TIME_TTL", 30 * time.Second, &cfg.TimeTTL},
		{"TIME_SYNC_INTERVAL", 30 * time.Second, &cfg.TimeSyncInterval},
		{"TIME_TICK_INTERVAL", time.Second, &cfg.TimeTickInterval},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, d.fallback); err != nil {
			return nil, err
		}
	}

	if cfg.BatchSize, err = sharedcfg.ParseBatchSize(); err != nil {
		return nil, err
	}
	if cfg.BatchFlushInterval, err = sharedcfg.ParseBatchFlushInterval(); err != nil {
		return nil, err
	}
	if cfg.FeedCap, err = parsePositiveInt("FEED_CAP", 30); err != nil {
		return nil, err
	}
	if cfg.GeocodeCacheSize, err = parsePositiveInt("GEOCODE_CACHE_SIZE", 1000); err != nil {
		return nil, err
	}
	if cfg.MinMagnitude, err = parseFloat("MIN_MAGNITUDE", 0.5); err != nil {
		return nil, err
	}
	if cfg.WeatherEnabled, err = parseBool("WEATHER_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", false); err != nil {
		return nil, err
	}

	for _, name := range parseList(os.Getenv("WEATHER_LOCATIONS")) {
		cfg.WeatherLocations = append(cfg.WeatherLocations, Location{Name: name})
	}
	if path := os.Getenv("WEATHER_LOCATIONS_FILE"); path != "" {
		locs, err := LoadLocations(path)
		if err != nil {
			return nil, fmt.Errorf("WEATHER_LOCATIONS_FILE: %w", err)
		}
		cfg.WeatherLocations = append(cfg.WeatherLocations, locs...)
	}

	if len(cfg.TimeBaseURLs) == 0 {
		return nil, errors.New("TIME_BASE_URLS is required")
	}
	if cfg.USGSBaseURL == "" {
		return nil, errors.New("USGS_BASE_URL is required")
	}
	if len(cfg.USGSFeeds) == 0 {
		return nil, errors.New("USGS_FEEDS is required")
	}
	if cfg.WeatherEnabled && len(cfg.OpenMeteoBaseURLs) == 0 {
		return nil, errors.New("OPEN_METEO_BASE_URLS is required when WEATHER_ENABLED is true")
	}
	if len(cfg.GeocodingBaseURLs) == 0 {
		return nil, errors.New("GEOCODING_BASE_URLS is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, s)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, s)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a number", key, s)
	}
	return f, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: must be true or false", key, s)
	}
	return b, nil
}

// parseList splits a comma-separated value, trimming blanks.
func parseList(value string) []string {
	return sharedcfg.ParseBrokers(value)
}
