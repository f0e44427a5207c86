// Package progress defines the event structures emitted by capture workers.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageRouteStart  Stage = "ROUTE_START"
	StageRouteDone   Stage = "ROUTE_DONE"
	StageRouteError  Stage = "ROUTE_ERROR"
	StageNavFallback Stage = "NAV_FALLBACK"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for route completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single step of run progress.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which run or route milestone occurred.
	Stage Stage
	// Worker is the index of the emitting worker; run events use -1.
	Worker int
	// Route is the raw route string for route events.
	Route string
	// URL is the resolved page URL.
	URL string
	// Bytes carries the artifact size for completed routes.
	Bytes int64
	// StatusClass groups the navigation's HTTP status.
	StatusClass StatusClass
	// Dur is the route's wall time, or the run's for run completions.
	Dur time.Duration
	// Note carries error text or the artifact path.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageRouteStart, StageRouteError, StageNavFallback:
		if e.Route == "" {
			return fmt.Errorf("%s requires route", e.Stage)
		}
	case StageRouteDone:
		if e.Route == "" {
			return errors.New("route done requires route")
		}
		if e.StatusClass == "" {
			return errors.New("route done requires status class")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ParseRunID decodes a textual run ID into the Event form.
func ParseRunID(raw string) ([16]byte, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return UUIDToBytes(id), nil
}

// ClassifyStatus groups HTTP status codes for route events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
