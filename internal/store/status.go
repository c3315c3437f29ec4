package store

import (
	"fmt"
	"time"
)

// State is the lifecycle of the published feed.
type State int

const (
	// StateLoading means a pass newer than the last completed one is in
	// flight, or no pass has completed yet. The previous feed and error stay
	// readable while loading.
	StateLoading State = iota
	// StateReady means the last completed pass published a feed.
	StateReady
	// StateError means the last completed pass failed. A feed from an
	// earlier pass may still be served; see Status.HasData.
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SourceStatus is the outcome of one source in the last completed pass.
type SourceStatus struct {
	Name   string `json:"name"`
	Events int    `json:"events"`
	Error  string `json:"error,omitempty"`
}

// Status describes the store for consumers. HasData distinguishes "never
// fetched successfully" from "fetched and confirmed empty".
type Status struct {
	State       State          `json:"state"`
	Err         string         `json:"error,omitempty"`
	LastSuccess time.Time      `json:"last_success"`
	Pass        uint64         `json:"pass"`
	PassID      string         `json:"pass_id,omitempty"`
	HasData     bool           `json:"has_data"`
	Sources     []SourceStatus `json:"sources,omitempty"`
}
