package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/petrijr/quest/pkg/api"
)

func TestPrometheusObserver_CountsLifecycle(t *testing.T) {
	ctx := context.Background()
	obs := New()

	inst := &api.Instance{ID: "qi-1", DefinitionID: "order", CorrelationKey: "O1"}

	obs.OnQuestStart(ctx, inst)
	obs.OnEventApplied(ctx, inst, api.Event{ID: "e1", Type: "OrderPlaced"})
	obs.OnCommandDispatched(ctx, inst, api.Command{ID: "qi-1:payment:1", Type: "ProcessPaymentCommand"}, 1, 5*time.Millisecond)
	obs.OnDispatchRetry(ctx, inst, api.Command{Type: "ProcessPaymentCommand"}, 1, context.DeadlineExceeded)
	obs.OnEventDropped(ctx, api.Event{ID: "e1", Type: "OrderPlaced"}, "duplicate event id")
	obs.OnQuestCompleted(ctx, inst)

	if got := testutil.ToFloat64(obs.questsStarted.WithLabelValues("order")); got != 1 {
		t.Fatalf("quests started: %v", got)
	}
	if got := testutil.ToFloat64(obs.commands.WithLabelValues("order", "ProcessPaymentCommand")); got != 1 {
		t.Fatalf("commands: %v", got)
	}
	if got := testutil.ToFloat64(obs.dispatchRetries.WithLabelValues("order", "ProcessPaymentCommand")); got != 1 {
		t.Fatalf("retries: %v", got)
	}
	if got := testutil.ToFloat64(obs.eventsDropped.WithLabelValues("OrderPlaced")); got != 1 {
		t.Fatalf("dropped: %v", got)
	}
	if got := testutil.ToFloat64(obs.questsSettled.WithLabelValues("order", "COMPLETED")); got != 1 {
		t.Fatalf("settled: %v", got)
	}
	if got := testutil.ToFloat64(obs.activeQuests); got != 0 {
		t.Fatalf("active gauge should return to zero, got %v", got)
	}
}

func TestPrometheusObserver_CompensationSettles(t *testing.T) {
	ctx := context.Background()
	obs := New()

	inst := &api.Instance{ID: "qi-2", DefinitionID: "order", CorrelationKey: "O2"}
	obs.OnQuestStart(ctx, inst)
	obs.OnCompensation(ctx, inst, api.Command{Type: "RefundPaymentCommand"})

	if got := testutil.ToFloat64(obs.compensations.WithLabelValues("order")); got != 1 {
		t.Fatalf("compensations: %v", got)
	}
	if got := testutil.ToFloat64(obs.questsSettled.WithLabelValues("order", "COMPENSATED")); got != 1 {
		t.Fatalf("settled: %v", got)
	}
	if got := testutil.ToFloat64(obs.activeQuests); got != 0 {
		t.Fatalf("active gauge: %v", got)
	}
}

func TestPrometheusObserver_HandlerServesRegistry(t *testing.T) {
	obs := New()
	if obs.Handler() == nil {
		t.Fatal("nil handler")
	}
	if obs.Registry() == nil {
		t.Fatal("nil registry")
	}
}
