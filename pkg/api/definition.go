package api

import (
	"errors"
	"fmt"
)

// ErrInvalidDefinition is returned (wrapped) when a quest definition fails
// load-time validation. The engine never spawns instances against a
// definition that did not compile.
var ErrInvalidDefinition = errors.New("invalid quest definition")

// Trigger identifies the event that births a new quest instance.
type Trigger struct {
	EventType    string
	EventVersion string
}

// Step is one forward step of a quest. The step's command is dispatched when
// the step is entered; the quest then waits for either OnSuccess or OnFailure.
type Step struct {
	Name string

	// TriggeredBy is the event type that enters this step. It is empty for
	// step 0 (entered by the start trigger) and must equal the previous
	// step's OnSuccess for every later step.
	TriggeredBy string

	// Command is the command type dispatched on entering this step.
	Command string

	// OnSuccess is the event type reporting that the step's command
	// succeeded. OnFailure reports that it failed.
	OnSuccess string
	OnFailure string
}

// Definition is the declarative, human-authored form of a quest: a start
// trigger, an ordered list of steps, a completion event, and a table of
// compensating commands keyed by failure event type.
//
// Definitions are data. They are compiled once via Compile and never
// re-interpreted per event.
type Definition struct {
	ID            string
	StartTrigger  Trigger
	Steps         []Step
	Completion    string
	Compensations map[string]string
}

// CompiledDefinition is the validated, immutable form of a Definition with
// the routing tables the engine needs at runtime. Construct it with Compile;
// the zero value is not usable.
type CompiledDefinition struct {
	def Definition

	// successOf / failureOf map an event type to the index of the step
	// awaiting it. Forward and compensation transitions are kept as two
	// disjoint tables; compensations live in def.Compensations.
	successOf map[string]int
	failureOf map[string]int
}

// Compile validates def and builds its routing tables.
//
// Validation enforces:
//   - non-empty ID, start trigger, and at least one step
//   - each step has a name, a command, and both outcome event types
//   - the step chain is contiguous: OnSuccess of step i equals TriggeredBy
//     of step i+1, and the last step's OnSuccess equals Completion
//   - every event type is unambiguous as a routing key within the definition
//   - every compensation is keyed by a failure event type of some step
func Compile(def Definition) (*CompiledDefinition, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("%w: definition ID is required", ErrInvalidDefinition)
	}
	if def.StartTrigger.EventType == "" {
		return nil, fmt.Errorf("%w: %s: start trigger event type is required", ErrInvalidDefinition, def.ID)
	}
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("%w: %s: at least one step is required", ErrInvalidDefinition, def.ID)
	}
	if def.Completion == "" {
		return nil, fmt.Errorf("%w: %s: completion event type is required", ErrInvalidDefinition, def.ID)
	}

	cd := &CompiledDefinition{
		def:       def,
		successOf: make(map[string]int, len(def.Steps)),
		failureOf: make(map[string]int, len(def.Steps)),
	}

	seen := map[string]string{
		def.StartTrigger.EventType: "start trigger",
	}
	claim := func(eventType, role string) error {
		if prev, ok := seen[eventType]; ok {
			return fmt.Errorf("%w: %s: event type %q used by both %s and %s",
				ErrInvalidDefinition, def.ID, eventType, prev, role)
		}
		seen[eventType] = role
		return nil
	}

	for i, step := range def.Steps {
		if step.Name == "" {
			return nil, fmt.Errorf("%w: %s: step %d has no name", ErrInvalidDefinition, def.ID, i)
		}
		if step.Command == "" {
			return nil, fmt.Errorf("%w: %s: step %q has no command", ErrInvalidDefinition, def.ID, step.Name)
		}
		if step.OnSuccess == "" || step.OnFailure == "" {
			return nil, fmt.Errorf("%w: %s: step %q must declare both success and failure event types",
				ErrInvalidDefinition, def.ID, step.Name)
		}

		switch {
		case i == 0:
			if step.TriggeredBy != "" {
				return nil, fmt.Errorf("%w: %s: step %q is first and must not declare a trigger",
					ErrInvalidDefinition, def.ID, step.Name)
			}
		case step.TriggeredBy != def.Steps[i-1].OnSuccess:
			return nil, fmt.Errorf("%w: %s: step %q is unreachable: triggered by %q but previous step succeeds with %q",
				ErrInvalidDefinition, def.ID, step.Name, step.TriggeredBy, def.Steps[i-1].OnSuccess)
		}

		if i == len(def.Steps)-1 && step.OnSuccess != def.Completion {
			return nil, fmt.Errorf("%w: %s: last step %q succeeds with %q but completion is %q",
				ErrInvalidDefinition, def.ID, step.Name, step.OnSuccess, def.Completion)
		}

		if err := claim(step.OnSuccess, fmt.Sprintf("step %q success", step.Name)); err != nil {
			return nil, err
		}
		if err := claim(step.OnFailure, fmt.Sprintf("step %q failure", step.Name)); err != nil {
			return nil, err
		}

		cd.successOf[step.OnSuccess] = i
		cd.failureOf[step.OnFailure] = i
	}

	for eventType := range def.Compensations {
		if _, ok := cd.failureOf[eventType]; !ok {
			return nil, fmt.Errorf("%w: %s: compensation for %q does not match any step failure",
				ErrInvalidDefinition, def.ID, eventType)
		}
	}

	return cd, nil
}

// MustCompile is like Compile but panics on error. Useful for definitions
// declared at init time.
func MustCompile(def Definition) *CompiledDefinition {
	cd, err := Compile(def)
	if err != nil {
		panic(err)
	}
	return cd
}

// ID returns the definition's identifier.
func (d *CompiledDefinition) ID() string { return d.def.ID }

// StartTrigger returns the birth trigger.
func (d *CompiledDefinition) StartTrigger() Trigger { return d.def.StartTrigger }

// NumSteps returns the number of forward steps.
func (d *CompiledDefinition) NumSteps() int { return len(d.def.Steps) }

// StepAt returns the step at index i. It panics if i is out of range, which
// indicates a corrupted instance rather than a caller error.
func (d *CompiledDefinition) StepAt(i int) Step { return d.def.Steps[i] }

// Completion returns the event type that completes the quest.
func (d *CompiledDefinition) Completion() string { return d.def.Completion }

// CompensationFor returns the compensating command registered for the given
// failure event type, if any.
func (d *CompiledDefinition) CompensationFor(failureEventType string) (string, bool) {
	cmd, ok := d.def.Compensations[failureEventType]
	return cmd, ok
}

// AwaitedEvents returns the event types an instance at step i reacts to:
// the step's success and failure outcomes.
func (d *CompiledDefinition) AwaitedEvents(i int) []string {
	step := d.def.Steps[i]
	return []string{step.OnSuccess, step.OnFailure}
}

// SuccessStep returns the index of the step whose OnSuccess equals eventType.
func (d *CompiledDefinition) SuccessStep(eventType string) (int, bool) {
	i, ok := d.successOf[eventType]
	return i, ok
}

// FailureStep returns the index of the step whose OnFailure equals eventType.
func (d *CompiledDefinition) FailureStep(eventType string) (int, bool) {
	i, ok := d.failureOf[eventType]
	return i, ok
}

// Definition returns a copy of the underlying declarative definition.
func (d *CompiledDefinition) Definition() Definition { return d.def }
