package domain

import "errors"

// Error taxonomy shared by fetchers, the aggregator and the time cache.
// Callers match with errors.Is; concrete errors wrap one of these.
var (
	// ErrTransport covers connection failures, timeouts and non-2xx responses.
	ErrTransport = errors.New("transport error")
	// ErrParse is a payload that could not be decoded.
	ErrParse = errors.New("parse error")
	// ErrRejected is a decoded payload that failed the acceptance check.
	ErrRejected = errors.New("payload rejected")
	// ErrNoDataAvailable means every candidate endpoint failed or was empty.
	ErrNoDataAvailable = errors.New("no data available")
	// ErrAggregationFailed means no source produced usable data in a pass.
	ErrAggregationFailed = errors.New("aggregation failed")
)
