package api

import "time"

// Status represents the lifecycle state of a quest instance.
type Status string

const (
	StatusRunning      Status = "RUNNING"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
)

// Terminal reports whether the status is final. Terminal instances are
// archived, never deleted, and receive no further events.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCompensated:
		return true
	}
	return false
}

// CommandRecord is one dispatched command in an instance's history. It is
// persisted before the dispatch is attempted, with Acked false; once the
// sink accepts the command, CommandID is updated to the accepted attempt's
// ID and Acked set. Payload keeps the command's payload so recovery can
// re-dispatch an unacked command intact.
type CommandRecord struct {
	StepName     string
	CommandID    string
	Payload      any
	DispatchedAt time.Time
	Acked        bool
}

// Instance is the mutable runtime record of one quest's progress.
// All mutation goes through the transition engine; instances are persisted
// after every applied event.
type Instance struct {
	ID             string
	DefinitionID   string
	CorrelationKey string

	// CurrentStep is the index of the step whose outcome the instance is
	// awaiting. While Running, 0 <= CurrentStep < NumSteps.
	CurrentStep int

	Status Status

	// LastEventID is the most recently applied event ID; AppliedEvents
	// holds every applied ID in application order. No ID is applied twice.
	LastEventID   string
	AppliedEvents []string

	// Commands records every dispatched command in dispatch order.
	Commands []CommandRecord

	// FailureReason is set when the instance reaches StatusFailed.
	FailureReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Applied reports whether the given event ID was already applied.
func (inst *Instance) Applied(eventID string) bool {
	if eventID == inst.LastEventID {
		return true
	}
	for _, id := range inst.AppliedEvents {
		if id == eventID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Stores and the supervisor hand out clones so
// callers can never mutate engine-owned state.
func (inst *Instance) Clone() *Instance {
	cp := *inst
	cp.AppliedEvents = append([]string(nil), inst.AppliedEvents...)
	cp.Commands = append([]CommandRecord(nil), inst.Commands...)
	return &cp
}

// InstanceListOptions controls how instances are listed.
// Zero values mean "no filter" for that field.
type InstanceListOptions struct {
	// DefinitionID, if non-empty, limits results to instances of the given
	// quest definition.
	DefinitionID string

	// Status, if non-empty, limits results to instances with the given status.
	Status Status

	// ActiveOnly limits results to non-terminal instances.
	ActiveOnly bool
}
