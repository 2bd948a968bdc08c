package transition

import (
	"strings"
	"testing"

	"github.com/petrijr/quest/pkg/api"
)

func testDefinition(t *testing.T) *api.CompiledDefinition {
	t.Helper()

	cd, err := api.Compile(api.Definition{
		ID:           "OrderFulfillment",
		StartTrigger: api.Trigger{EventType: "OrderPlaced", EventVersion: "v1"},
		Steps: []api.Step{
			{Name: "processPayment", Command: "ProcessPayment", OnSuccess: "PaymentProcessed", OnFailure: "PaymentFailed"},
			{Name: "updateInventory", TriggeredBy: "PaymentProcessed", Command: "UpdateInventory", OnSuccess: "InventoryUpdated", OnFailure: "InventoryUpdateFailed"},
		},
		Completion: "InventoryUpdated",
		Compensations: map[string]string{
			"InventoryUpdateFailed": "RefundPayment",
		},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return cd
}

func runningInstance(step int) *api.Instance {
	return &api.Instance{
		ID:             "qi-1",
		DefinitionID:   "OrderFulfillment",
		CorrelationKey: "O1",
		CurrentStep:    step,
		Status:         api.StatusRunning,
		LastEventID:    "ev-start",
		AppliedEvents:  []string{"ev-start"},
	}
}

func TestStart_EntersStepZero(t *testing.T) {
	def := testDefinition(t)

	out, err := Start(def, api.Event{ID: "ev-1", Type: "OrderPlaced", Version: "v1", CorrelationKey: "O1"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if !out.Applied || out.NewStatus != api.StatusRunning || out.NewStep != 0 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Command == nil || out.Command.CommandType != "ProcessPayment" || out.Command.StepName != "processPayment" {
		t.Fatalf("expected ProcessPayment command, got %+v", out.Command)
	}
}

func TestStart_RejectsWrongTrigger(t *testing.T) {
	def := testDefinition(t)

	if _, err := Start(def, api.Event{ID: "ev-1", Type: "OrderPlaced", Version: "v2"}); err == nil {
		t.Fatal("expected version mismatch to be rejected")
	}
	if _, err := Start(def, api.Event{ID: "ev-1", Type: "SomethingElse", Version: "v1"}); err == nil {
		t.Fatal("expected type mismatch to be rejected")
	}
}

func TestApply_SuccessAdvancesStep(t *testing.T) {
	def := testDefinition(t)
	inst := runningInstance(0)

	out := Apply(def, inst, api.Event{ID: "ev-2", Type: "PaymentProcessed", CorrelationKey: "O1"})

	if !out.Applied {
		t.Fatalf("event dropped: %s", out.DropReason)
	}
	if out.NewStatus != api.StatusRunning || out.NewStep != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Command == nil || out.Command.CommandType != "UpdateInventory" {
		t.Fatalf("expected UpdateInventory command, got %+v", out.Command)
	}
}

func TestApply_LastStepSuccessCompletes(t *testing.T) {
	def := testDefinition(t)
	inst := runningInstance(1)

	out := Apply(def, inst, api.Event{ID: "ev-3", Type: "InventoryUpdated", CorrelationKey: "O1"})

	if !out.Applied || !out.Terminal {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.NewStatus != api.StatusCompleted {
		t.Fatalf("expected Completed, got %s", out.NewStatus)
	}
	if out.Command != nil {
		t.Fatalf("completion must not dispatch a command, got %+v", out.Command)
	}
}

func TestApply_FailureWithCompensation(t *testing.T) {
	def := testDefinition(t)
	inst := runningInstance(1)

	out := Apply(def, inst, api.Event{ID: "ev-3", Type: "InventoryUpdateFailed", CorrelationKey: "O1"})

	if !out.Applied || out.NewStatus != api.StatusCompensating {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Terminal {
		t.Fatal("Compensating must not be terminal until the command is issued")
	}
	if out.Command == nil || !out.Command.Compensation || out.Command.CommandType != "RefundPayment" {
		t.Fatalf("expected RefundPayment compensation, got %+v", out.Command)
	}
}

func TestApply_FailureWithoutCompensation(t *testing.T) {
	def := testDefinition(t)
	inst := runningInstance(0)

	out := Apply(def, inst, api.Event{ID: "ev-2", Type: "PaymentFailed", CorrelationKey: "O1"})

	if !out.Applied || !out.Terminal || out.NewStatus != api.StatusFailed {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if out.Command != nil {
		t.Fatal("uncompensated failure must not dispatch a command")
	}
	if !strings.Contains(out.FailureReason, "PaymentFailed") {
		t.Fatalf("failure reason should name the event: %q", out.FailureReason)
	}
}

func TestApply_DuplicateEventIsNoop(t *testing.T) {
	def := testDefinition(t)
	inst := runningInstance(0)
	inst.AppliedEvents = append(inst.AppliedEvents, "ev-2")

	out := Apply(def, inst, api.Event{ID: "ev-2", Type: "PaymentProcessed", CorrelationKey: "O1"})

	if out.Applied {
		t.Fatal("duplicate event id must be a no-op")
	}
	if out.DropReason != "duplicate event id" {
		t.Fatalf("unexpected drop reason: %q", out.DropReason)
	}
}

func TestApply_StaleEventIsNoop(t *testing.T) {
	def := testDefinition(t)
	inst := runningInstance(1)

	// PaymentProcessed already happened; re-delivery with a fresh id is
	// stale relative to the awaited step-1 triggers.
	out := Apply(def, inst, api.Event{ID: "ev-9", Type: "PaymentProcessed", CorrelationKey: "O1"})

	if out.Applied {
		t.Fatal("stale event must not corrupt state")
	}
}

func TestApply_TerminalInstanceAppliesNothing(t *testing.T) {
	def := testDefinition(t)

	for _, status := range []api.Status{api.StatusCompleted, api.StatusFailed, api.StatusCompensated, api.StatusCompensating} {
		inst := runningInstance(1)
		inst.Status = status

		out := Apply(def, inst, api.Event{ID: "ev-9", Type: "InventoryUpdated", CorrelationKey: "O1"})
		if out.Applied {
			t.Fatalf("status %s must not apply events", status)
		}
	}
}

func TestCancel_UsesInFlightStepCompensation(t *testing.T) {
	def := testDefinition(t)
	inst := runningInstance(1)

	out, err := Cancel(def, inst, "operator request")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if out.NewStatus != api.StatusCompensating {
		t.Fatalf("expected Compensating, got %s", out.NewStatus)
	}
	if out.Command == nil || out.Command.CommandType != "RefundPayment" {
		t.Fatalf("expected RefundPayment, got %+v", out.Command)
	}
}

func TestCancel_FailsWhenNoCompensation(t *testing.T) {
	def := testDefinition(t)
	inst := runningInstance(0)

	out, err := Cancel(def, inst, "operator request")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if out.NewStatus != api.StatusFailed || !out.Terminal {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !strings.Contains(out.FailureReason, "operator request") {
		t.Fatalf("failure reason should carry the cancel reason: %q", out.FailureReason)
	}
}

func TestCancel_TerminalInstanceRejected(t *testing.T) {
	def := testDefinition(t)
	inst := runningInstance(0)
	inst.Status = api.StatusCompleted

	if _, err := Cancel(def, inst, "late"); err == nil {
		t.Fatal("expected terminal instance to reject cancel")
	}
}
