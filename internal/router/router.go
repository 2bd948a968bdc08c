// Package router decides where inbound events go: whether an event births a
// new quest instance, is awaited by an existing one, or is irrelevant and
// dropped. It maintains the wait table (event type x correlation key ->
// instance) that makes an idle instance cost nothing but a map entry.
package router

import (
	"sync"

	"github.com/petrijr/quest/pkg/api"
)

// Kind classifies a routing decision.
type Kind int

const (
	// Drop means the event matches nothing and is discarded without error.
	Drop Kind = iota

	// Spawn means the event is a start trigger with no active instance for
	// its correlation key; a new instance should be born.
	Spawn

	// Deliver means an existing instance awaits this event.
	Deliver
)

// Decision is the result of routing one event to at most one instance.
type Decision struct {
	Kind         Kind
	DefinitionID string // set for Spawn
	InstanceID   string // set for Deliver
	Reason       string // set for Drop
}

type startKey struct {
	eventType string
	version   string
}

type waitKey struct {
	eventType      string
	correlationKey string
}

type activeKey struct {
	definitionID   string
	correlationKey string
}

// Router is safe for concurrent use. The supervisor serializes mutation per
// correlation key, so Arm/Disarm/Bind for one key never race each other, but
// unrelated keys mutate the table concurrently.
type Router struct {
	mu     sync.RWMutex
	starts map[startKey]string   // start trigger -> definition ID
	waits  map[waitKey]string    // awaited event for a key -> instance ID
	active map[activeKey]string  // live instance per (definition, key)
}

func New() *Router {
	return &Router{
		starts: make(map[startKey]string),
		waits:  make(map[waitKey]string),
		active: make(map[activeKey]string),
	}
}

// RegisterDefinition adds the definition's start trigger to the routing
// table. Two definitions sharing a start trigger would be ambiguous.
func (r *Router) RegisterDefinition(def *api.CompiledDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := startKey{def.StartTrigger().EventType, def.StartTrigger().EventVersion}
	if existing, ok := r.starts[key]; ok && existing != def.ID() {
		return &AmbiguousTriggerError{EventType: key.eventType, Definitions: []string{existing, def.ID()}}
	}
	r.starts[key] = def.ID()
	return nil
}

// Route decides what to do with one event. Events with an empty correlation
// key or ID are malformed and dropped.
func (r *Router) Route(ev api.Event) Decision {
	if ev.ID == "" || ev.CorrelationKey == "" {
		return Decision{Kind: Drop, Reason: "malformed event: missing id or correlation key"}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if instID, ok := r.waits[waitKey{ev.Type, ev.CorrelationKey}]; ok {
		return Decision{Kind: Deliver, InstanceID: instID}
	}

	if defID, ok := r.starts[startKey{ev.Type, ev.Version}]; ok {
		if _, live := r.active[activeKey{defID, ev.CorrelationKey}]; live {
			// Duplicate start for a key with a live instance: idempotent no-op.
			return Decision{Kind: Drop, Reason: "active instance already exists for correlation key"}
		}
		return Decision{Kind: Spawn, DefinitionID: defID}
	}

	return Decision{Kind: Drop, Reason: "no matching trigger"}
}

// ActiveInstance returns the live instance ID for a (definition, key) pair.
func (r *Router) ActiveInstance(definitionID, correlationKey string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[activeKey{definitionID, correlationKey}]
	return id, ok
}

// Bind records a newborn instance as the live instance for its key and arms
// its awaited events.
func (r *Router) Bind(def *api.CompiledDefinition, inst *api.Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active[activeKey{inst.DefinitionID, inst.CorrelationKey}] = inst.ID
	r.armLocked(def, inst)
}

// Rearm replaces the instance's wait entries after a transition: previous
// step triggers are removed and the new step's triggers installed. Terminal
// and compensating instances await nothing.
func (r *Router) Rearm(def *api.CompiledDefinition, inst *api.Instance, priorStep int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, et := range def.AwaitedEvents(priorStep) {
		delete(r.waits, waitKey{et, inst.CorrelationKey})
	}
	r.armLocked(def, inst)
}

// Release removes every routing entry for a settled instance.
func (r *Router) Release(def *api.CompiledDefinition, inst *api.Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, et := range def.AwaitedEvents(inst.CurrentStep) {
		delete(r.waits, waitKey{et, inst.CorrelationKey})
	}
	delete(r.active, activeKey{inst.DefinitionID, inst.CorrelationKey})
}

func (r *Router) armLocked(def *api.CompiledDefinition, inst *api.Instance) {
	if inst.Status != api.StatusRunning {
		return
	}
	for _, et := range def.AwaitedEvents(inst.CurrentStep) {
		r.waits[waitKey{et, inst.CorrelationKey}] = inst.ID
	}
}

// AmbiguousTriggerError reports two definitions claiming one start trigger.
type AmbiguousTriggerError struct {
	EventType   string
	Definitions []string
}

func (e *AmbiguousTriggerError) Error() string {
	return "start trigger " + e.EventType + " is claimed by more than one definition"
}
