// Package openmeteo talks to the Open-Meteo forecast and geocoding APIs and
// turns forecasts into hazard events and weather reports.
package openmeteo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/fetch"
)

const (
	DefaultForecastURL  = "https://api.open-meteo.com/v1"
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1"

	currentFields = "temperature_2m,relative_humidity_2m,apparent_temperature,is_day,precipitation,weather_code,wind_speed_10m,wind_direction_10m"
	dailyFields   = "weather_code,temperature_2m_max,temperature_2m_min,precipitation_sum,precipitation_probability_max,wind_speed_10m_max"
)

// ForecastClient fetches forecasts, trying each base URL in order.
type ForecastClient struct {
	fetcher  *fetch.Client
	baseURLs []string
}

// NewForecastClient creates a forecast client. An empty baseURLs uses
// DefaultForecastURL.
func NewForecastClient(fetcher *fetch.Client, baseURLs []string) *ForecastClient {
	if len(baseURLs) == 0 {
		baseURLs = []string{DefaultForecastURL}
	}
	return &ForecastClient{fetcher: fetcher, baseURLs: baseURLs}
}

// Forecast returns current conditions and a five day daily forecast for a
// point. Responses without daily data are rejected.
func (c *ForecastClient) Forecast(ctx context.Context, lat, lon float64) (domain.Forecast, error) {
	params := url.Values{
		"latitude":      {formatCoord(lat)},
		"longitude":     {formatCoord(lon)},
		"current":       {currentFields},
		"daily":         {dailyFields},
		"timezone":      {"UTC"},
		"forecast_days": {strconv.Itoa(domain.ReportForecastDays)},
	}

	endpoints := make([]string, len(c.baseURLs))
	for i, base := range c.baseURLs {
		endpoints[i] = strings.TrimRight(base, "/") + "/forecast?" + params.Encode()
	}

	f, err := fetch.FetchJSON(ctx, c.fetcher, endpoints, domain.Forecast.HasDaily)
	if err != nil {
		return domain.Forecast{}, fmt.Errorf("forecast for %s,%s: %w", formatCoord(lat), formatCoord(lon), err)
	}
	return f, nil
}

// Report builds the consumer weather report for place. updated is the
// synchronized current instant.
func (c *ForecastClient) Report(ctx context.Context, place domain.Place, updated time.Time) (domain.WeatherReport, error) {
	f, err := c.Forecast(ctx, place.Lat, place.Lon)
	if err != nil {
		return domain.WeatherReport{}, err
	}
	return domain.BuildWeatherReport(f, place, updated), nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
