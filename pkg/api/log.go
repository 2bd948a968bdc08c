package api

import "time"

// LogEntry is one append-only quest log record. The log is written ahead of
// any externally visible effect and is the authoritative source for crash
// recovery and operator inspection.
type LogEntry struct {
	InstanceID string

	// Seq is monotonic per instance, starting at 1.
	Seq int64

	PriorStatus Status

	// EventID is the applied event, or empty for entries not caused by an
	// event (cancellation, dispatch exhaustion, compensation settlement).
	EventID string

	NewStatus Status
	StepIndex int

	// CommandID is the command emitted by this transition, or empty. The
	// entry is written before dispatch, so this is always the attempt-1
	// form of the deterministic identifier; it names the command intent,
	// not a delivery. The attempt the sink eventually accepted is recorded
	// on the instance's CommandRecord.
	CommandID string

	// Detail carries a small human-oriented note (drop reason, failure
	// reason, cancel reason). Keep it low-volume.
	Detail string

	RecordedAt time.Time
}
