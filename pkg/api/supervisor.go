package api

import (
	"context"
	"errors"
)

var (
	// ErrDefinitionNotFound is returned when a quest definition is not
	// registered with the supervisor.
	ErrDefinitionNotFound = errors.New("quest definition not found")

	// ErrInstanceNotFound is returned when a quest instance does not exist.
	ErrInstanceNotFound = errors.New("quest instance not found")

	// ErrInstanceTerminal is returned when an operation targets an instance
	// that has already reached a terminal status.
	ErrInstanceTerminal = errors.New("quest instance is terminal")
)

// Supervisor owns quest instance lifecycle: it routes inbound events, births
// instances from start triggers, serializes mutation per instance, recovers
// state on restart, and exposes the operator surface.
//
// Deliver is the single entry point for all events, including synthetic ones
// injected by an external scheduler. Events for different correlation keys
// may be delivered fully concurrently; events sharing a key must be
// delivered in arrival order by the caller (LocalRunner shards by key to
// guarantee this).
type Supervisor interface {
	// RegisterDefinition makes a compiled definition available for routing.
	// Registering the same ID twice is an error.
	RegisterDefinition(def *CompiledDefinition) error

	// Spawn births an instance of the given definition from a start-trigger
	// event. If an active instance already exists for the event's
	// correlation key, Spawn returns that instance unchanged: duplicate
	// start events are idempotent no-ops.
	Spawn(ctx context.Context, definitionID string, trigger Event) (*Instance, error)

	// Deliver routes one event: it may birth an instance, advance an
	// existing one, or drop the event as irrelevant. The returned instance
	// is nil when the event was dropped. Deliver never returns an error for
	// stale, duplicate, or unknown events; those are logged no-ops.
	Deliver(ctx context.Context, ev Event) (*Instance, error)

	// GetInstance returns a snapshot of one instance.
	GetInstance(ctx context.Context, id string) (*Instance, error)

	// ListInstances returns instance snapshots matching the options.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*Instance, error)

	// ListActive returns the non-terminal instances of one definition.
	ListActive(ctx context.Context, definitionID string) ([]*Instance, error)

	// History returns the instance's full quest log in sequence order.
	History(ctx context.Context, instanceID string) ([]LogEntry, error)

	// Cancel forces a non-terminal instance to Compensating (using the
	// in-flight step's compensation) or Failed when none is defined.
	// The cancellation is write-ahead logged before taking effect.
	Cancel(ctx context.Context, instanceID string, reason string) (*Instance, error)

	// RecoverActive reloads all non-terminal instances from the quest log
	// store and re-arms their routing entries. It is intended to be called
	// on process startup, before events are delivered, and returns the
	// number of instances recovered.
	RecoverActive(ctx context.Context) (int, error)
}
