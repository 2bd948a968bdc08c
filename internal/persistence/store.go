// Package persistence provides the durable storage behind the quest engine:
// definition registry, instance store, and the append-only quest log.
// In-memory, SQLite, Postgres, and Redis implementations are available; the
// supervisor treats them uniformly through the interfaces below.
package persistence

import (
	"context"

	"github.com/petrijr/quest/pkg/api"
)

// DefinitionStore handles storage of compiled quest definitions.
type DefinitionStore interface {
	SaveDefinition(def *api.CompiledDefinition) error
	GetDefinition(id string) (*api.CompiledDefinition, error)
	ListDefinitions() ([]*api.CompiledDefinition, error)
}

// InstanceFilter selects instances from the store. Zero values mean
// "no filter" for that field.
type InstanceFilter struct {
	DefinitionID string
	Status       api.Status
	ActiveOnly   bool
}

// InstanceStore handles storage of quest instances. Instances are archived,
// never deleted; there is deliberately no Delete.
type InstanceStore interface {
	SaveInstance(inst *api.Instance) error
	UpdateInstance(inst *api.Instance) error
	GetInstance(id string) (*api.Instance, error)
	ListInstances(filter InstanceFilter) ([]*api.Instance, error)
}

// LogStore is the append-only quest log. Entries carry a per-instance
// monotonic sequence assigned by the caller; Append must reject nothing and
// reorder nothing.
type LogStore interface {
	Append(ctx context.Context, e api.LogEntry) error
	List(ctx context.Context, instanceID string) ([]api.LogEntry, error)
	LastSeq(ctx context.Context, instanceID string) (int64, error)
}

// Persistence bundles the stores a supervisor needs.
type Persistence struct {
	Definitions DefinitionStore
	Instances   InstanceStore
	Log         LogStore
}
