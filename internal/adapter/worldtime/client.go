// Package worldtime reads the current time from WorldTimeAPI-compatible
// servers.
package worldtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/fetch"
)

// DefaultBaseURL is the public WorldTimeAPI endpoint.
const DefaultBaseURL = "https://worldtimeapi.org/api"

// ZoneTime is the wall-clock reading for one IANA zone.
type ZoneTime struct {
	Zone         string    `json:"timezone"`
	Datetime     time.Time `json:"datetime"`
	UTCDatetime  time.Time `json:"utc_datetime"`
	UTCOffset    string    `json:"utc_offset"`
	Abbreviation string    `json:"abbreviation,omitempty"`
}

// Client implements timesync.Source. Every base URL is a candidate endpoint,
// tried in order.
type Client struct {
	fetcher  *fetch.Client
	baseURLs []string
}

// NewClient creates a time client. An empty baseURLs uses DefaultBaseURL.
func NewClient(fetcher *fetch.Client, baseURLs []string) *Client {
	if len(baseURLs) == 0 {
		baseURLs = []string{DefaultBaseURL}
	}
	return &Client{fetcher: fetcher, baseURLs: baseURLs}
}

// FetchTime returns the current UTC instant.
func (c *Client) FetchTime(ctx context.Context) (time.Time, error) {
	zt, err := c.FetchZone(ctx, "UTC")
	if err != nil {
		return time.Time{}, err
	}
	return zt.UTCDatetime, nil
}

// FetchZone returns the current time in an IANA zone such as "Europe/Paris".
func (c *Client) FetchZone(ctx context.Context, zone string) (ZoneTime, error) {
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return ZoneTime{}, fmt.Errorf("%w: empty timezone", domain.ErrRejected)
	}

	resp, err := fetch.FetchJSON[response](ctx, c.fetcher, c.endpoints("timezone/"+escapeZone(zone)), nil)
	if err != nil {
		return ZoneTime{}, fmt.Errorf("fetch time for %s: %w", zone, err)
	}
	return resp.toZoneTime(), nil
}

// Timezones lists the zone names the server knows.
func (c *Client) Timezones(ctx context.Context) ([]string, error) {
	zones, err := fetch.FetchJSON(ctx, c.fetcher, c.endpoints("timezone"), func(z []string) bool { return len(z) > 0 })
	if err != nil {
		return nil, fmt.Errorf("fetch timezones: %w", err)
	}
	return zones, nil
}

func (c *Client) endpoints(path string) []string {
	out := make([]string, 0, len(c.baseURLs))
	for _, base := range c.baseURLs {
		out = append(out, strings.TrimRight(base, "/")+"/"+path)
	}
	return out
}

// escapeZone escapes each path segment of a zone name, keeping the slashes.
func escapeZone(zone string) string {
	parts := strings.Split(zone, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// WorldTimeAPI response shape.

type response struct {
	Timezone     string `json:"timezone"`
	Datetime     string `json:"datetime"`
	UTCDatetime  string `json:"utc_datetime"`
	UTCOffset    string `json:"utc_offset"`
	Abbreviation string `json:"abbreviation"`
	Unixtime     int64  `json:"unixtime"`

	utc time.Time
}

// UnmarshalJSON rejects a payload whose utc_datetime is missing or not
// RFC 3339, so the fetcher reports it as a parse failure.
func (r *response) UnmarshalJSON(data []byte) error {
	type plain response
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	utc, err := parseTimestamp(p.UTCDatetime)
	if err != nil {
		return fmt.Errorf("utc_datetime: %w", err)
	}
	*r = response(p)
	r.utc = utc
	return nil
}

func (r response) toZoneTime() ZoneTime {
	local, err := parseTimestamp(r.Datetime)
	if err != nil {
		local = r.utc
	}
	return ZoneTime{
		Zone:         r.Timezone,
		Datetime:     local,
		UTCDatetime:  r.utc.UTC(),
		UTCOffset:    r.UTCOffset,
		Abbreviation: r.Abbreviation,
	}
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
}
