package quest

import (
	"errors"
	"testing"

	"github.com/petrijr/quest/pkg/api"
)

func TestDefinitionBuilder_BuildsValidDefinition(t *testing.T) {
	def, err := NewDefinition("order-fulfilment").
		StartsOn("OrderPlaced", "v1").
		Step("payment", "ProcessPaymentCommand", "PaymentProcessed", "PaymentFailed").
		Step("inventory", "UpdateInventoryCommand", "InventoryUpdated", "InventoryUpdateFailed").
		Compensate("InventoryUpdateFailed", "RefundPaymentCommand").
		CompleteOn("InventoryUpdated").
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if def.ID() != "order-fulfilment" {
		t.Fatalf("id: %s", def.ID())
	}
	if def.NumSteps() != 2 {
		t.Fatalf("steps: %d", def.NumSteps())
	}
	// The builder chains TriggeredBy automatically.
	if got := def.StepAt(1).TriggeredBy; got != "PaymentProcessed" {
		t.Fatalf("step 1 trigger: %s", got)
	}
	if cmd, ok := def.CompensationFor("InventoryUpdateFailed"); !ok || cmd != "RefundPaymentCommand" {
		t.Fatalf("compensation: %s %v", cmd, ok)
	}
}

func TestDefinitionBuilder_InvalidDefinitionFailsBuild(t *testing.T) {
	// Completion does not match the final step's success event.
	_, err := NewDefinition("broken").
		StartsOn("Go", "v1").
		Step("only", "DoCommand", "Done", "Broke").
		CompleteOn("SomethingElse").
		Build()
	if !errors.Is(err, api.ErrInvalidDefinition) {
		t.Fatalf("expected ErrInvalidDefinition, got %v", err)
	}
}

func TestDefinitionBuilder_PanicsOnEmptyStepName(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewDefinition("x").Step("", "DoCommand", "Done", "Broke")
}

func TestDefinitionBuilder_PanicsOnMissingCommand(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewDefinition("x").Step("a", "", "Done", "Broke")
}

func TestDefinitionBuilder_DefinitionAccessor(t *testing.T) {
	b := NewDefinition("probe").
		StartsOn("Go", "v2").
		Step("only", "DoCommand", "Done", "Broke").
		CompleteOn("Done")

	raw := b.Definition()
	if raw.ID != "probe" || raw.StartTrigger.EventVersion != "v2" || len(raw.Steps) != 1 {
		t.Fatalf("unexpected raw definition: %+v", raw)
	}
}
