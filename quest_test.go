package quest

import (
	"context"
	"sync"
	"testing"
	"time"
)

// captureSink records every delivered command, for tests.
type captureSink struct {
	mu       sync.Mutex
	commands []Command
}

func (s *captureSink) Deliver(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
	return nil
}

func (s *captureSink) delivered() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

func (s *captureSink) ofType(t string) []Command {
	var out []Command
	for _, c := range s.delivered() {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

func orderDefinition() *CompiledDefinition {
	return NewDefinition("order-fulfilment").
		StartsOn("OrderPlaced", "v1").
		Step("payment", "ProcessPaymentCommand", "PaymentProcessed", "PaymentFailed").
		Step("inventory", "UpdateInventoryCommand", "InventoryUpdated", "InventoryUpdateFailed").
		Compensate("InventoryUpdateFailed", "RefundPaymentCommand").
		CompleteOn("InventoryUpdated").
		MustBuild()
}

func orderEvent(id, typ, key string) Event {
	return Event{ID: id, Type: typ, Version: "v1", CorrelationKey: key, OccurredAt: time.Now()}
}

func TestQuest_TopLevelWrappers_DeliverGetList(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	sup := NewInMemorySupervisor(sink)

	if err := sup.RegisterDefinition(orderDefinition()); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Start via the top-level Deliver wrapper.
	inst, err := Deliver(ctx, sup, orderEvent("e1", "OrderPlaced", "O1"))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if inst == nil || inst.Status != StatusRunning {
		t.Fatalf("unexpected instance after start: %+v", inst)
	}

	// GetInstance wrapper should return the same instance.
	got, err := GetInstance(ctx, sup, inst.ID)
	if err != nil || got.ID != inst.ID {
		t.Fatalf("get instance mismatch: %v", err)
	}

	// ListInstances wrapper with filters.
	lst, err := ListInstances(ctx, sup, InstanceListOptions{DefinitionID: "order-fulfilment", Status: StatusRunning})
	if err != nil || len(lst) != 1 {
		t.Fatalf("expected to list running instance: %v len=%d", err, len(lst))
	}

	// Drive the saga to completion.
	if _, err := Deliver(ctx, sup, orderEvent("e2", "PaymentProcessed", "O1")); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	after, err := Deliver(ctx, sup, orderEvent("e3", "InventoryUpdated", "O1"))
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if after.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", after.Status)
	}

	cmds := sink.delivered()
	if len(cmds) != 2 || cmds[0].Type != "ProcessPaymentCommand" || cmds[1].Type != "UpdateInventoryCommand" {
		t.Fatalf("unexpected commands: %+v", cmds)
	}
	if cmds[0].ID != CommandID(inst.ID, "payment", 1) {
		t.Fatalf("command ID mismatch: %s", cmds[0].ID)
	}
}

func TestQuest_CompensationThroughFacade(t *testing.T) {
	ctx := context.Background()
	sink := &captureSink{}
	sup := NewInMemorySupervisorWithObserver(sink, NewLoggingObserver(nil))

	if err := sup.RegisterDefinition(orderDefinition()); err != nil {
		t.Fatalf("register: %v", err)
	}

	inst, _ := sup.Deliver(ctx, orderEvent("e1", "OrderPlaced", "O2"))
	sup.Deliver(ctx, orderEvent("e2", "PaymentProcessed", "O2"))
	sup.Deliver(ctx, orderEvent("e3", "InventoryUpdateFailed", "O2"))

	got, err := sup.GetInstance(ctx, inst.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompensated {
		t.Fatalf("expected compensated, got %s", got.Status)
	}
	if refunds := sink.ofType("RefundPaymentCommand"); len(refunds) != 1 {
		t.Fatalf("expected one refund, got %d", len(refunds))
	}

	history, err := sup.History(ctx, inst.ID)
	if err != nil || len(history) == 0 {
		t.Fatalf("history: %v len=%d", err, len(history))
	}
}

func TestQuest_EventHelpers(t *testing.T) {
	ev := NewEvent("OrderPlaced", "v1", "O3", map[string]any{"total": 42})
	if ev.ID == "" || ev.Type != "OrderPlaced" || ev.CorrelationKey != "O3" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	other := NewEvent("OrderPlaced", "v1", "O3", nil)
	if other.ID == ev.ID {
		t.Fatal("event IDs should be unique")
	}

	to := TimeoutEvent("PaymentFailed", "v1", "O3", "payment window elapsed")
	if to.Type != "PaymentFailed" || to.ID == "" {
		t.Fatalf("unexpected timeout event: %+v", to)
	}
}

func TestQuest_BasicMetricsObserver(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetrics{}
	sup := NewInMemorySupervisorWithObserver(&captureSink{}, metrics)

	if err := sup.RegisterDefinition(orderDefinition()); err != nil {
		t.Fatalf("register: %v", err)
	}

	sup.Deliver(ctx, orderEvent("e1", "OrderPlaced", "O4"))
	sup.Deliver(ctx, orderEvent("e2", "PaymentProcessed", "O4"))
	sup.Deliver(ctx, orderEvent("e3", "InventoryUpdated", "O4"))

	snap := metrics.Snapshot()
	if snap.QuestsStarted != 1 || snap.QuestsCompleted != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.CommandsDispatched != 2 {
		t.Fatalf("expected 2 dispatched commands, got %d", snap.CommandsDispatched)
	}
}
