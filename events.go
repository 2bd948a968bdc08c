package quest

import (
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/quest/pkg/api"
)

// NewEvent constructs an event with a fresh unique ID, stamped now.
// Callers bridging an external bus that already assigns IDs should build the
// Event struct directly and keep the bus's ID, so redeliveries dedupe.
func NewEvent(eventType, version, correlationKey string, payload any) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           eventType,
		Version:        version,
		CorrelationKey: correlationKey,
		Payload:        payload,
		OccurredAt:     time.Now(),
	}
}

// TimeoutEvent constructs the synthetic event an external scheduler injects
// when a quest has waited too long. The engine has no built-in timers; a
// timeout is just an event, typically the failure event of the step being
// timed out, and flows through Deliver like any other.
func TimeoutEvent(eventType, version, correlationKey, reason string) Event {
	ev := NewEvent(eventType, version, correlationKey, api.TimeoutPayload{Reason: reason})
	ev.ID = "timeout-" + ev.ID
	return ev
}
