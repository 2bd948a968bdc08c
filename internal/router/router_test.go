package router

import (
	"testing"

	"github.com/petrijr/quest/pkg/api"
)

func compiled(t *testing.T) *api.CompiledDefinition {
	t.Helper()

	cd, err := api.Compile(api.Definition{
		ID:           "OrderFulfillment",
		StartTrigger: api.Trigger{EventType: "OrderPlaced", EventVersion: "v1"},
		Steps: []api.Step{
			{Name: "processPayment", Command: "ProcessPayment", OnSuccess: "PaymentProcessed", OnFailure: "PaymentFailed"},
		},
		Completion: "PaymentProcessed",
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return cd
}

func TestRoute_SpawnOnStartTrigger(t *testing.T) {
	r := New()
	def := compiled(t)
	if err := r.RegisterDefinition(def); err != nil {
		t.Fatalf("RegisterDefinition failed: %v", err)
	}

	d := r.Route(api.Event{ID: "ev-1", Type: "OrderPlaced", Version: "v1", CorrelationKey: "O1"})
	if d.Kind != Spawn || d.DefinitionID != "OrderFulfillment" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestRoute_VersionMismatchDrops(t *testing.T) {
	r := New()
	if err := r.RegisterDefinition(compiled(t)); err != nil {
		t.Fatalf("RegisterDefinition failed: %v", err)
	}

	d := r.Route(api.Event{ID: "ev-1", Type: "OrderPlaced", Version: "v2", CorrelationKey: "O1"})
	if d.Kind != Drop {
		t.Fatalf("expected drop, got %+v", d)
	}
}

func TestRoute_MalformedEventDrops(t *testing.T) {
	r := New()

	if d := r.Route(api.Event{Type: "OrderPlaced", CorrelationKey: "O1"}); d.Kind != Drop {
		t.Fatalf("missing id should drop, got %+v", d)
	}
	if d := r.Route(api.Event{ID: "ev-1", Type: "OrderPlaced"}); d.Kind != Drop {
		t.Fatalf("missing correlation key should drop, got %+v", d)
	}
}

func TestRoute_DeliverToArmedInstance(t *testing.T) {
	r := New()
	def := compiled(t)
	if err := r.RegisterDefinition(def); err != nil {
		t.Fatalf("RegisterDefinition failed: %v", err)
	}

	inst := &api.Instance{
		ID:             "qi-1",
		DefinitionID:   def.ID(),
		CorrelationKey: "O1",
		CurrentStep:    0,
		Status:         api.StatusRunning,
	}
	r.Bind(def, inst)

	d := r.Route(api.Event{ID: "ev-2", Type: "PaymentProcessed", CorrelationKey: "O1"})
	if d.Kind != Deliver || d.InstanceID != "qi-1" {
		t.Fatalf("unexpected decision: %+v", d)
	}

	// Same event type, different key: no wait entry, no start trigger.
	d = r.Route(api.Event{ID: "ev-3", Type: "PaymentProcessed", CorrelationKey: "O2"})
	if d.Kind != Drop {
		t.Fatalf("expected drop for unknown key, got %+v", d)
	}
}

func TestRoute_DuplicateStartForLiveKeyDrops(t *testing.T) {
	r := New()
	def := compiled(t)
	if err := r.RegisterDefinition(def); err != nil {
		t.Fatalf("RegisterDefinition failed: %v", err)
	}

	inst := &api.Instance{
		ID: "qi-1", DefinitionID: def.ID(), CorrelationKey: "O1",
		Status: api.StatusRunning,
	}
	r.Bind(def, inst)

	d := r.Route(api.Event{ID: "ev-dup", Type: "OrderPlaced", Version: "v1", CorrelationKey: "O1"})
	if d.Kind != Drop {
		t.Fatalf("duplicate start must drop, got %+v", d)
	}

	// A different key still spawns.
	d = r.Route(api.Event{ID: "ev-4", Type: "OrderPlaced", Version: "v1", CorrelationKey: "O2"})
	if d.Kind != Spawn {
		t.Fatalf("expected spawn for fresh key, got %+v", d)
	}
}

func TestRelease_FreesKeyForRebirth(t *testing.T) {
	r := New()
	def := compiled(t)
	if err := r.RegisterDefinition(def); err != nil {
		t.Fatalf("RegisterDefinition failed: %v", err)
	}

	inst := &api.Instance{
		ID: "qi-1", DefinitionID: def.ID(), CorrelationKey: "O1",
		Status: api.StatusRunning,
	}
	r.Bind(def, inst)
	inst.Status = api.StatusCompleted
	r.Release(def, inst)

	if d := r.Route(api.Event{ID: "ev-5", Type: "PaymentProcessed", CorrelationKey: "O1"}); d.Kind != Drop {
		t.Fatalf("released instance must not receive events, got %+v", d)
	}
	if d := r.Route(api.Event{ID: "ev-6", Type: "OrderPlaced", Version: "v1", CorrelationKey: "O1"}); d.Kind != Spawn {
		t.Fatalf("terminal instance must not block a new start, got %+v", d)
	}
}

func TestRegisterDefinition_AmbiguousTrigger(t *testing.T) {
	r := New()
	if err := r.RegisterDefinition(compiled(t)); err != nil {
		t.Fatalf("RegisterDefinition failed: %v", err)
	}

	other, err := api.Compile(api.Definition{
		ID:           "OtherQuest",
		StartTrigger: api.Trigger{EventType: "OrderPlaced", EventVersion: "v1"},
		Steps: []api.Step{
			{Name: "s0", Command: "Cmd", OnSuccess: "Done", OnFailure: "Broke"},
		},
		Completion: "Done",
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if err := r.RegisterDefinition(other); err == nil {
		t.Fatal("expected ambiguous start trigger to be rejected")
	}
}
