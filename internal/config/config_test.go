package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 8*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 60*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 25*time.Second, cfg.RefreshTimeout)
	assert.Equal(t, 30, cfg.FeedCap)
	assert.InDelta(t, 0.5, cfg.MinMagnitude, 1e-9)
	assert.Equal(t, []string{"https://worldtimeapi.org/api"}, cfg.TimeBaseURLs)
	assert.Equal(t, 30*time.Second, cfg.TimeTTL)
	assert.Equal(t, 30*time.Second, cfg.TimeSyncInterval)
	assert.Equal(t, time.Second, cfg.TimeTickInterval)
	assert.Equal(t, "https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary", cfg.USGSBaseURL)
	assert.Equal(t, []string{"all_day", "2.5_day", "1.0_day"}, cfg.USGSFeeds)
	assert.True(t, cfg.WeatherEnabled)
	assert.Equal(t, []string{"https://api.open-meteo.com/v1"}, cfg.OpenMeteoBaseURLs)
	assert.Equal(t, []string{"https://geocoding-api.open-meteo.com/v1"}, cfg.GeocodingBaseURLs)
	assert.Equal(t, 1000, cfg.GeocodeCacheSize)
	assert.Empty(t, cfg.WeatherLocations)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "hazard-feed", cfg.KafkaTopic)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("FETCH_TIMEOUT", "3s")
	t.Setenv("REFRESH_INTERVAL", "2m")
	t.Setenv("REFRESH_TIMEOUT", "45s")
	t.Setenv("FEED_CAP", "50")
	t.Setenv("MIN_MAGNITUDE", "2.5")
	t.Setenv("TIME_BASE_URLS", "http://time-a/api, http://time-b/api")
	t.Setenv("TIME_TTL", "10s")
	t.Setenv("USGS_FEEDS", "4.5_day")
	t.Setenv("WEATHER_ENABLED", "false")
	t.Setenv("WEATHER_LOCATIONS", "Oklahoma City, Reykjavik,")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "hazards")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 2*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 45*time.Second, cfg.RefreshTimeout)
	assert.Equal(t, 50, cfg.FeedCap)
	assert.InDelta(t, 2.5, cfg.MinMagnitude, 1e-9)
	assert.Equal(t, []string{"http://time-a/api", "http://time-b/api"}, cfg.TimeBaseURLs)
	assert.Equal(t, 10*time.Second, cfg.TimeTTL)
	assert.Equal(t, []string{"4.5_day"}, cfg.USGSFeeds)
	assert.False(t, cfg.WeatherEnabled)
	assert.Equal(t, []Location{{Name: "Oklahoma City"}, {Name: "Reykjavik"}}, cfg.WeatherLocations)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "hazards", cfg.KafkaTopic)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchFlushInterval)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"FETCH_TIMEOUT", "soon"},
		{"REFRESH_INTERVAL", "0s"},
		{"REFRESH_TIMEOUT", "never"},
		{"TIME_TTL", "-5s"},
		{"FEED_CAP", "0"},
		{"FEED_CAP", "many"},
		{"GEOCODE_CACHE_SIZE", "-1"},
		{"MIN_MAGNITUDE", "big"},
		{"WEATHER_ENABLED", "maybe"},
		{"KAFKA_ENABLED", "yes please"},
		{"TIME_BASE_URLS", " , "},
		{"USGS_FEEDS", ","},
		{"BATCH_SIZE", "9999"},
		{"BATCH_FLUSH_INTERVAL", "not-a-duration"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_KafkaEnabledRequiresBrokers(t *testing.T) {
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", " , ")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_KafkaBrokersIgnoredWhenDisabled(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", ",")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled)
}

func TestLoad_LocationsFile(t *testing.T) {
	path := writeFile(t, `
locations:
  - name: Oklahoma City
    country: US
    region: Oklahoma
    lat: 35.4676
    lon: -97.5164
  - name: Reykjavik
`)
	t.Setenv("WEATHER_LOCATIONS", "Tokyo")
	t.Setenv("WEATHER_LOCATIONS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.WeatherLocations, 3)
	assert.Equal(t, Location{Name: "Tokyo"}, cfg.WeatherLocations[0])
	assert.Equal(t, Location{Name: "Oklahoma City", Country: "US", Region: "Oklahoma", Lat: 35.4676, Lon: -97.5164}, cfg.WeatherLocations[1])
	assert.Equal(t, Location{Name: "Reykjavik"}, cfg.WeatherLocations[2])
}

func TestLoad_LocationsFileMissing(t *testing.T) {
	t.Setenv("WEATHER_LOCATIONS_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEATHER_LOCATIONS_FILE")
}

func TestLoadLocations_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"malformed yaml", "locations: [", "yaml"},
		{"missing name", "locations:\n  - lat: 1\n    lon: 2\n", "name is required"},
		{"latitude out of range", "locations:\n  - name: Nowhere\n    lat: 91\n    lon: 0\n", "out of range"},
		{"longitude out of range", "locations:\n  - name: Nowhere\n    lat: 0\n    lon: -181\n", "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadLocations(writeFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadLocations_Empty(t *testing.T) {
	locs, err := LoadLocations(writeFile(t, "locations: []\n"))
	require.NoError(t, err)
	assert.Empty(t, locs)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "locations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
