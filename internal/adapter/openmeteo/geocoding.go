package openmeteo

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/fetch"
	"github.com/couchcryptid/hazard-feed/internal/observability"
)

// DefaultSearchCount is the number of matches a location search returns.
const DefaultSearchCount = 5

// GeocodingClient implements domain.Geocoder using the Open-Meteo geocoding API.
type GeocodingClient struct {
	fetcher  *fetch.Client
	baseURLs []string
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewGeocodingClient creates a geocoding client. An empty baseURLs uses
// DefaultGeocodingURL.
func NewGeocodingClient(fetcher *fetch.Client, baseURLs []string, logger *slog.Logger, metrics *observability.Metrics) *GeocodingClient {
	if len(baseURLs) == 0 {
		baseURLs = []string{DefaultGeocodingURL}
	}
	return &GeocodingClient{
		fetcher:  fetcher,
		baseURLs: baseURLs,
		logger:   logger,
		metrics:  metrics,
	}
}

// SearchPlaces looks up a free-text place name. No match is an empty result,
// not an error.
func (c *GeocodingClient) SearchPlaces(ctx context.Context, name string, count int) ([]domain.Place, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	if count <= 0 {
		count = DefaultSearchCount
	}

	params := url.Values{
		"name":     {name},
		"count":    {strconv.Itoa(count)},
		"language": {"en"},
		"format":   {"json"},
	}
	endpoints := make([]string, len(c.baseURLs))
	for i, base := range c.baseURLs {
		endpoints[i] = strings.TrimRight(base, "/") + "/search?" + params.Encode()
	}

	start := time.Now()
	resp, err := fetch.FetchJSON[response](ctx, c.fetcher, endpoints, nil)
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("search places %q: %w", name, err)
	}

	if len(resp.Results) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		c.logger.Debug("no places found", "query", name)
		return []domain.Place{}, nil
	}

	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	places := make([]domain.Place, 0, len(resp.Results))
	for _, r := range resp.Results {
		places = append(places, r.toPlace())
	}
	return places, nil
}

// Open-Meteo geocoding response types.

type response struct {
	Results []result `json:"results"`
}

type result struct {
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country"`
	Admin1      string  `json:"admin1"`
}

func (r result) toPlace() domain.Place {
	country := r.CountryCode
	if country == "" {
		country = r.Country
	}
	if country == "" {
		country = domain.UnknownCountry
	}
	return domain.Place{
		Name:    r.Name,
		Country: country,
		Region:  r.Admin1,
		Lat:     r.Latitude,
		Lon:     r.Longitude,
	}
}
