package api

import (
	"encoding/gob"
	"time"
)

func init() {
	gob.Register(map[string]any{})
}

// Event is an observed fact consumed by the engine. Events arrive from an
// external bus with at-least-once delivery; ID is the dedupe token.
type Event struct {
	// ID is globally unique. Applying the same ID twice is a no-op.
	ID string

	Type    string
	Version string

	// CorrelationKey scopes the event to one quest instance, e.g. an
	// order ID.
	CorrelationKey string

	Payload    any
	OccurredAt time.Time
}

// Command is an instruction produced by the engine for an external handler.
// CommandID is deterministic per (instance, step, attempt), so a retried
// dispatch is recognizable as a duplicate downstream.
type Command struct {
	ID             string
	Type           string
	CorrelationKey string
	Payload        any
	IssuedAt       time.Time
}

// TimeoutPayload is the payload convention for synthetic timeout events
// injected by an external scheduler. They travel through Deliver like any
// other event; the engine itself defines no timers.
type TimeoutPayload struct {
	Reason string
}
