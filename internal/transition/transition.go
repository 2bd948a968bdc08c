// Package transition implements the pure state machine at the heart of the
// quest engine. Given an instance and an event it computes the next state
// and the command to dispatch, if any. It performs no I/O and mutates
// nothing; the supervisor is responsible for logging, persisting, and
// dispatching the outcome.
package transition

import (
	"fmt"

	"github.com/petrijr/quest/pkg/api"
)

// CommandIntent names a command the supervisor must dispatch as part of
// applying an outcome. The dispatcher derives the concrete command ID.
type CommandIntent struct {
	StepName    string
	CommandType string

	// Compensation marks the command as a compensating action. After a
	// compensation is issued the instance settles to StatusCompensated.
	Compensation bool
}

// Outcome is the result of applying one event to one instance.
type Outcome struct {
	// Applied is false for no-ops: duplicate IDs, stale triggers, events
	// for terminal instances. DropReason explains why.
	Applied    bool
	DropReason string

	NewStatus api.Status
	NewStep   int

	// Command is the command to dispatch, or nil.
	Command *CommandIntent

	// Terminal is true when NewStatus is final. A Compensating outcome is
	// not terminal yet; it settles to Compensated once its command is
	// issued.
	Terminal bool

	// FailureReason is set when NewStatus is StatusFailed.
	FailureReason string
}

func drop(reason string) Outcome {
	return Outcome{DropReason: reason}
}

// Start computes the outcome of birthing an instance from a start-trigger
// event: the quest enters step 0 and dispatches that step's command.
func Start(def *api.CompiledDefinition, ev api.Event) (Outcome, error) {
	trig := def.StartTrigger()
	if ev.Type != trig.EventType || ev.Version != trig.EventVersion {
		return Outcome{}, fmt.Errorf("event %s (%s %s) does not match start trigger of %s",
			ev.ID, ev.Type, ev.Version, def.ID())
	}

	first := def.StepAt(0)
	return Outcome{
		Applied:   true,
		NewStatus: api.StatusRunning,
		NewStep:   0,
		Command: &CommandIntent{
			StepName:    first.Name,
			CommandType: first.Command,
		},
	}, nil
}

// Apply computes the transition for one event against a live instance.
//
// Rules, in order:
//   - an already-applied event ID is a no-op (at-least-once tolerance)
//   - a terminal or compensating instance applies nothing further
//   - the current step's success event advances the quest, completing it
//     when the success event is the completion trigger
//   - the current step's failure event moves the quest to Compensating when
//     a compensation is defined, Failed otherwise
//   - anything else is a stale or reordered trigger and is a no-op
//
// Apply never returns an error for irrelevant traffic; irrelevance is an
// expected property of the stream, reported via DropReason.
func Apply(def *api.CompiledDefinition, inst *api.Instance, ev api.Event) Outcome {
	if inst.Applied(ev.ID) {
		return drop("duplicate event id")
	}
	if inst.Status.Terminal() {
		return drop("instance is terminal")
	}
	if inst.Status == api.StatusCompensating {
		// Single-level compensation: once the compensating command is
		// issued, no further events can change the instance's course.
		return drop("instance is compensating")
	}

	step := def.StepAt(inst.CurrentStep)

	switch ev.Type {
	case step.OnSuccess:
		if inst.CurrentStep == def.NumSteps()-1 && step.OnSuccess == def.Completion() {
			return Outcome{
				Applied:   true,
				NewStatus: api.StatusCompleted,
				NewStep:   inst.CurrentStep,
				Terminal:  true,
			}
		}

		next := def.StepAt(inst.CurrentStep + 1)
		return Outcome{
			Applied:   true,
			NewStatus: api.StatusRunning,
			NewStep:   inst.CurrentStep + 1,
			Command: &CommandIntent{
				StepName:    next.Name,
				CommandType: next.Command,
			},
		}

	case step.OnFailure:
		if cmd, ok := def.CompensationFor(ev.Type); ok {
			return Outcome{
				Applied:   true,
				NewStatus: api.StatusCompensating,
				NewStep:   inst.CurrentStep,
				Command: &CommandIntent{
					StepName:     step.Name,
					CommandType:  cmd,
					Compensation: true,
				},
			}
		}
		return Outcome{
			Applied:       true,
			NewStatus:     api.StatusFailed,
			NewStep:       inst.CurrentStep,
			Terminal:      true,
			FailureReason: fmt.Sprintf("step %s failed with %s and no compensation is defined", step.Name, ev.Type),
		}
	}

	return drop("event does not match awaited triggers")
}

// Cancel computes the outcome of an operator-initiated cancellation. The
// in-flight step's compensation is used when defined (it undoes the most
// recently completed step); otherwise the instance fails.
func Cancel(def *api.CompiledDefinition, inst *api.Instance, reason string) (Outcome, error) {
	if inst.Status.Terminal() {
		return Outcome{}, api.ErrInstanceTerminal
	}
	if inst.Status == api.StatusCompensating {
		return Outcome{}, api.ErrInstanceTerminal
	}

	step := def.StepAt(inst.CurrentStep)
	if cmd, ok := def.CompensationFor(step.OnFailure); ok {
		return Outcome{
			Applied:   true,
			NewStatus: api.StatusCompensating,
			NewStep:   inst.CurrentStep,
			Command: &CommandIntent{
				StepName:     step.Name,
				CommandType:  cmd,
				Compensation: true,
			},
		}, nil
	}

	return Outcome{
		Applied:       true,
		NewStatus:     api.StatusFailed,
		NewStep:       inst.CurrentStep,
		Terminal:      true,
		FailureReason: "cancelled: " + reason,
	}, nil
}
