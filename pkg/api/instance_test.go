package api

import "testing"

func TestStatus_Terminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCompensated}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}

	active := []Status{StatusRunning, StatusCompensating}
	for _, s := range active {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestInstance_Applied(t *testing.T) {
	inst := &Instance{
		LastEventID:   "ev-3",
		AppliedEvents: []string{"ev-1", "ev-2", "ev-3"},
	}

	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		if !inst.Applied(id) {
			t.Fatalf("expected %s to be applied", id)
		}
	}
	if inst.Applied("ev-4") {
		t.Fatal("ev-4 should not be applied")
	}
}

func TestInstance_CloneIsIndependent(t *testing.T) {
	inst := &Instance{
		ID:            "qi-1",
		AppliedEvents: []string{"ev-1"},
		Commands:      []CommandRecord{{StepName: "s0", CommandID: "c1"}},
	}

	cp := inst.Clone()
	cp.AppliedEvents = append(cp.AppliedEvents, "ev-2")
	cp.Commands[0].Acked = true

	if len(inst.AppliedEvents) != 1 {
		t.Fatalf("clone mutation leaked into original: %v", inst.AppliedEvents)
	}
	if inst.Commands[0].Acked {
		t.Fatal("clone command mutation leaked into original")
	}
}
