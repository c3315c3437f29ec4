// Package fetch retrieves JSON documents from an ordered list of candidate
// endpoints, falling back to the next candidate on any failure.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/couchcryptid/hazard-feed/internal/domain"
	"github.com/couchcryptid/hazard-feed/internal/observability"
)

const (
	// DefaultTimeout bounds a single endpoint attempt.
	DefaultTimeout = 8 * time.Second

	userAgent    = "hazard-feed/1.0"
	maxBodyBytes = 16 << 20
)

// Client performs endpoint attempts on behalf of one named upstream source.
type Client struct {
	name       string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a fetch client. name labels logs and metrics; timeout is
// applied to every endpoint attempt.
func NewClient(name string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		name:       name,
		httpClient: NewHTTPClient(timeout),
		timeout:    timeout,
		logger:     logger,
		metrics:    metrics,
	}
}

// Name returns the source label the client reports under.
func (c *Client) Name() string { return c.name }

// NewHTTPClient returns an http.Client with a tuned transport shared by all
// upstream sources.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// NoDataError reports that every candidate endpoint failed or was rejected.
// It matches domain.ErrNoDataAvailable and unwraps to the last attempt's error.
type NoDataError struct {
	Source   string
	Attempts int
	LastErr  error
}

func (e *NoDataError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("%s: %s after %d attempts", e.Source, domain.ErrNoDataAvailable, e.Attempts)
	}
	return fmt.Sprintf("%s: %s after %d attempts: %v", e.Source, domain.ErrNoDataAvailable, e.Attempts, e.LastErr)
}

func (e *NoDataError) Is(target error) bool { return target == domain.ErrNoDataAvailable }

func (e *NoDataError) Unwrap() error { return e.LastErr }

// FetchJSON tries endpoints in order and returns the first response that is
// 2xx, decodes into T and satisfies accept. A nil accept takes any decoded
// value. Cancelling ctx stops the chain and returns the context error.
func FetchJSON[T any](ctx context.Context, c *Client, endpoints []string, accept func(T) bool) (T, error) {
	var zero T
	var lastErr error

	for i, endpoint := range endpoints {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fetchOne(ctx, c, endpoint, accept)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback endpoint succeeded", "source", c.name, "endpoint", endpoint, "attempt", i+1)
			}
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		c.logger.Warn("endpoint failed, trying next", "source", c.name, "endpoint", endpoint, "error", err)
		lastErr = err
	}

	return zero, &NoDataError{Source: c.name, Attempts: len(endpoints), LastErr: lastErr}
}

func fetchOne[T any](ctx context.Context, c *Client, endpoint string, accept func(T) bool) (T, error) {
	var v T

	start := time.Now()
	err := c.getJSON(ctx, endpoint, &v)
	c.metrics.FetchDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	if err == nil && accept != nil && !accept(v) {
		err = fmt.Errorf("%s: %w", endpoint, domain.ErrRejected)
	}
	c.metrics.FetchAttempts.WithLabelValues(c.name, outcome(err)).Inc()
	if err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrTransport, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s: status %d: %s", domain.ErrTransport, endpoint, resp.StatusCode, body)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dst); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrTransport, endpoint, err)
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrParse, endpoint, err)
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrParse):
		return "parse"
	case errors.Is(err, domain.ErrRejected):
		return "rejected"
	default:
		return "transport"
	}
}
