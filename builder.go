package quest

import (
	"fmt"

	"github.com/petrijr/quest/pkg/api"
)

// DefinitionBuilder provides a fluent API for defining quests:
//
//	def, err := quest.NewDefinition("OrderFulfilment").
//	    StartsOn("OrderPlaced", "v1").
//	    Step("payment", "ProcessPaymentCommand", "PaymentProcessed", "PaymentFailed").
//	    Step("inventory", "UpdateInventoryCommand", "InventoryUpdated", "InventoryUpdateFailed").
//	    Compensate("InventoryUpdateFailed", "RefundPaymentCommand").
//	    CompleteOn("InventoryUpdated").
//	    Build()
//
//	if err := sup.RegisterDefinition(def); err != nil {
//	    log.Fatal(err)
//	}
type DefinitionBuilder struct {
	def api.Definition
}

// NewDefinition creates a new quest definition builder with the given ID.
func NewDefinition(id string) *DefinitionBuilder {
	return &DefinitionBuilder{
		def: api.Definition{
			ID:            id,
			Steps:         make([]api.Step, 0),
			Compensations: make(map[string]string),
		},
	}
}

// ID returns the definition ID.
func (b *DefinitionBuilder) ID() string {
	return b.def.ID
}

// Definition returns the underlying Definition.
// Typically used when interacting with lower-level APIs.
func (b *DefinitionBuilder) Definition() Definition {
	return b.def
}

// StartsOn sets the start trigger that births instances of this quest.
func (b *DefinitionBuilder) StartsOn(eventType, eventVersion string) *DefinitionBuilder {
	b.def.StartTrigger = api.Trigger{EventType: eventType, EventVersion: eventVersion}
	return b
}

// Step appends a step: the command dispatched on entry and the event types
// that advance or fail it. The step is chained to the previous one: it is
// entered when the previous step's success event arrives.
func (b *DefinitionBuilder) Step(name, command, onSuccess, onFailure string) *DefinitionBuilder {
	if name == "" {
		panic("quest: step name must not be empty")
	}
	if command == "" {
		panic(fmt.Sprintf("quest: step %q has no command", name))
	}

	triggeredBy := ""
	if n := len(b.def.Steps); n > 0 {
		triggeredBy = b.def.Steps[n-1].OnSuccess
	}

	b.def.Steps = append(b.def.Steps, api.Step{
		Name:        name,
		TriggeredBy: triggeredBy,
		Command:     command,
		OnSuccess:   onSuccess,
		OnFailure:   onFailure,
	})
	return b
}

// Compensate registers the compensating command dispatched when the given
// failure event arrives.
func (b *DefinitionBuilder) Compensate(failureEventType, command string) *DefinitionBuilder {
	b.def.Compensations[failureEventType] = command
	return b
}

// CompleteOn sets the event type whose arrival completes the quest. It must
// be the success event of the final step.
func (b *DefinitionBuilder) CompleteOn(eventType string) *DefinitionBuilder {
	b.def.Completion = eventType
	return b
}

// Build compiles and validates the definition.
func (b *DefinitionBuilder) Build() (*CompiledDefinition, error) {
	return api.Compile(b.def)
}

// MustBuild is Build that panics on an invalid definition. Intended for
// definitions constructed from literals at startup.
func (b *DefinitionBuilder) MustBuild() *CompiledDefinition {
	return api.MustCompile(b.def)
}
