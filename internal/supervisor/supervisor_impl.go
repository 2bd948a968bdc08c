package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/quest/internal/dispatch"
	"github.com/petrijr/quest/internal/persistence"
	"github.com/petrijr/quest/internal/router"
	"github.com/petrijr/quest/internal/transition"
	"github.com/petrijr/quest/pkg/api"
)

// supervisorImpl owns instance lifecycle. Every mutation of an instance
// happens under its correlation key's lock and is appended to the quest log
// before any externally visible effect.
type supervisorImpl struct {
	definitions persistence.DefinitionStore
	instances   persistence.InstanceStore
	log         persistence.LogStore

	router     *router.Router
	dispatcher *dispatch.Dispatcher
	observer   api.Observer

	keys  *keyedMutex
	newID func() string
	now   func() time.Time
}

// Config describes how to construct a supervisor.
// Only used inside this package; external callers use the helper functions
// in the quest package.
type Config struct {
	Persistence persistence.Persistence
	Sink        dispatch.Sink
	Retry       dispatch.RetryPolicy
	Observer    api.Observer
}

// NewWithConfig creates a Supervisor using the given configuration.
func NewWithConfig(cfg Config) api.Supervisor {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	return &supervisorImpl{
		definitions: cfg.Persistence.Definitions,
		instances:   cfg.Persistence.Instances,
		log:         cfg.Persistence.Log,
		router:      router.New(),
		dispatcher:  dispatch.New(cfg.Sink, cfg.Retry, obs),
		observer:    obs,
		keys:        newKeyedMutex(),
		newID:       func() string { return "qi-" + uuid.NewString() },
		now:         time.Now,
	}
}

func (s *supervisorImpl) RegisterDefinition(def *api.CompiledDefinition) error {
	if def == nil {
		return errors.New("definition is required")
	}

	if _, err := s.definitions.GetDefinition(def.ID()); err == nil {
		return fmt.Errorf("quest definition already registered: %s", def.ID())
	} else if !errors.Is(err, api.ErrDefinitionNotFound) {
		return err
	}

	if err := s.router.RegisterDefinition(def); err != nil {
		return err
	}
	return s.definitions.SaveDefinition(def)
}

func (s *supervisorImpl) Spawn(ctx context.Context, definitionID string, trigger api.Event) (*api.Instance, error) {
	def, err := s.definitions.GetDefinition(definitionID)
	if err != nil {
		return nil, err
	}
	if trigger.CorrelationKey == "" {
		return nil, errors.New("start trigger has no correlation key")
	}

	s.keys.Lock(trigger.CorrelationKey)
	defer s.keys.Unlock(trigger.CorrelationKey)

	// Duplicate starts against a live instance are idempotent no-ops.
	if id, ok := s.router.ActiveInstance(definitionID, trigger.CorrelationKey); ok {
		s.observer.OnEventDropped(ctx, trigger, "active instance already exists for correlation key")
		return s.instances.GetInstance(id)
	}

	return s.spawnLocked(ctx, def, trigger)
}

func (s *supervisorImpl) Deliver(ctx context.Context, ev api.Event) (*api.Instance, error) {
	s.keys.Lock(ev.CorrelationKey)
	defer s.keys.Unlock(ev.CorrelationKey)

	decision := s.router.Route(ev)
	switch decision.Kind {
	case router.Spawn:
		def, err := s.definitions.GetDefinition(decision.DefinitionID)
		if err != nil {
			return nil, err
		}
		return s.spawnLocked(ctx, def, ev)

	case router.Deliver:
		return s.applyLocked(ctx, decision.InstanceID, ev)

	default:
		s.observer.OnEventDropped(ctx, ev, decision.Reason)
		return nil, nil
	}
}

// spawnLocked births an instance. Caller holds the correlation key lock.
func (s *supervisorImpl) spawnLocked(ctx context.Context, def *api.CompiledDefinition, ev api.Event) (*api.Instance, error) {
	out, err := transition.Start(def, ev)
	if err != nil {
		return nil, err
	}

	now := s.now()
	inst := &api.Instance{
		ID:             s.newID(),
		DefinitionID:   def.ID(),
		CorrelationKey: ev.CorrelationKey,
		CurrentStep:    0,
		Status:         api.StatusRunning,
		LastEventID:    ev.ID,
		AppliedEvents:  []string{ev.ID},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Write-ahead: the birth is logged before the instance exists anywhere
	// else, and before the first command leaves the process.
	entry := api.LogEntry{
		InstanceID: inst.ID,
		Seq:        1,
		EventID:    ev.ID,
		NewStatus:  api.StatusRunning,
		StepIndex:  0,
		CommandID:  dispatch.CommandID(inst.ID, out.Command.StepName, 1),
		RecordedAt: now,
	}
	if err := s.log.Append(ctx, entry); err != nil {
		return nil, err
	}

	// The pending command is persisted with the birth, payload included, so
	// a crash before the sink ack can re-dispatch it intact.
	inst.Commands = []api.CommandRecord{{
		StepName:     out.Command.StepName,
		CommandID:    entry.CommandID,
		Payload:      ev.Payload,
		DispatchedAt: now,
	}}

	if err := s.instances.SaveInstance(inst); err != nil {
		return nil, err
	}

	s.router.Bind(def, inst)
	s.observer.OnQuestStart(ctx, inst)
	s.observer.OnEventApplied(ctx, inst, ev)

	return s.dispatchAndSettle(ctx, def, inst, out, ev.Payload)
}

// applyLocked advances one instance by one event. Caller holds the
// correlation key lock.
func (s *supervisorImpl) applyLocked(ctx context.Context, instanceID string, ev api.Event) (*api.Instance, error) {
	inst, err := s.instances.GetInstance(instanceID)
	if err != nil {
		return nil, err
	}
	def, err := s.definitions.GetDefinition(inst.DefinitionID)
	if err != nil {
		return nil, err
	}

	out := transition.Apply(def, inst, ev)
	if !out.Applied {
		s.observer.OnEventDropped(ctx, ev, out.DropReason)
		return nil, nil
	}

	priorStatus := inst.Status
	priorStep := inst.CurrentStep

	seq, err := s.log.LastSeq(ctx, inst.ID)
	if err != nil {
		return nil, err
	}

	commandID := ""
	if out.Command != nil {
		commandID = dispatch.CommandID(inst.ID, out.Command.StepName, 1)
	}

	entry := api.LogEntry{
		InstanceID:  inst.ID,
		Seq:         seq + 1,
		PriorStatus: priorStatus,
		EventID:     ev.ID,
		NewStatus:   out.NewStatus,
		StepIndex:   out.NewStep,
		CommandID:   commandID,
		Detail:      out.FailureReason,
		RecordedAt:  s.now(),
	}
	if err := s.log.Append(ctx, entry); err != nil {
		return nil, err
	}

	inst.Status = out.NewStatus
	inst.CurrentStep = out.NewStep
	inst.LastEventID = ev.ID
	inst.AppliedEvents = append(inst.AppliedEvents, ev.ID)
	inst.FailureReason = out.FailureReason
	inst.UpdatedAt = s.now()

	if out.Command != nil {
		inst.Commands = append(inst.Commands, api.CommandRecord{
			StepName:     out.Command.StepName,
			CommandID:    commandID,
			Payload:      ev.Payload,
			DispatchedAt: inst.UpdatedAt,
		})
	}

	if err := s.instances.UpdateInstance(inst); err != nil {
		return inst, err
	}

	s.observer.OnEventApplied(ctx, inst, ev)

	if out.NewStatus == api.StatusRunning {
		s.router.Rearm(def, inst, priorStep)
	}

	return s.dispatchAndSettle(ctx, def, inst, out, ev.Payload)
}

// dispatchAndSettle emits the outcome's command (if any), settles
// compensations to their terminal status, and releases terminal instances
// from the routing tables.
func (s *supervisorImpl) dispatchAndSettle(ctx context.Context, def *api.CompiledDefinition, inst *api.Instance, out transition.Outcome, payload any) (*api.Instance, error) {
	if out.Command == nil {
		if out.Terminal {
			s.settleTerminal(ctx, def, inst)
		}
		return inst, nil
	}

	cmd, _, err := s.dispatcher.Dispatch(ctx, inst, out.Command.StepName, out.Command.CommandType, payload)

	// Back-annotate the pending record with the attempt the sink accepted.
	if n := len(inst.Commands); n > 0 && inst.Commands[n-1].StepName == out.Command.StepName {
		rec := &inst.Commands[n-1]
		rec.CommandID = cmd.ID
		rec.DispatchedAt = s.now()
		rec.Acked = err == nil
	}
	inst.UpdatedAt = s.now()

	if err != nil {
		var exhausted *dispatch.ExhaustedError
		if errors.As(err, &exhausted) {
			return s.failExhausted(ctx, def, inst, exhausted)
		}
		// Context cancellation mid-dispatch: persist the unacked record so
		// recovery can re-dispatch, and surface the error.
		if uerr := s.instances.UpdateInstance(inst); uerr != nil {
			return inst, uerr
		}
		return inst, err
	}

	if out.Command.Compensation {
		s.observer.OnCompensation(ctx, inst, cmd)
		return s.settleCompensated(ctx, def, inst)
	}

	if err := s.instances.UpdateInstance(inst); err != nil {
		return inst, err
	}
	if out.Terminal {
		s.settleTerminal(ctx, def, inst)
	}
	return inst, nil
}

// settleCompensated moves a Compensating instance to Compensated once its
// single compensation command has been issued.
func (s *supervisorImpl) settleCompensated(ctx context.Context, def *api.CompiledDefinition, inst *api.Instance) (*api.Instance, error) {
	seq, err := s.log.LastSeq(ctx, inst.ID)
	if err != nil {
		return inst, err
	}

	entry := api.LogEntry{
		InstanceID:  inst.ID,
		Seq:         seq + 1,
		PriorStatus: api.StatusCompensating,
		NewStatus:   api.StatusCompensated,
		StepIndex:   inst.CurrentStep,
		Detail:      "compensation issued",
		RecordedAt:  s.now(),
	}
	if err := s.log.Append(ctx, entry); err != nil {
		return inst, err
	}

	inst.Status = api.StatusCompensated
	inst.UpdatedAt = s.now()
	if err := s.instances.UpdateInstance(inst); err != nil {
		return inst, err
	}

	s.settleTerminal(ctx, def, inst)
	return inst, nil
}

// failExhausted records dispatch exhaustion as a visible Failed transition.
func (s *supervisorImpl) failExhausted(ctx context.Context, def *api.CompiledDefinition, inst *api.Instance, exhausted *dispatch.ExhaustedError) (*api.Instance, error) {
	seq, err := s.log.LastSeq(ctx, inst.ID)
	if err != nil {
		return inst, err
	}

	priorStatus := inst.Status
	reason := exhausted.Error()

	entry := api.LogEntry{
		InstanceID:  inst.ID,
		Seq:         seq + 1,
		PriorStatus: priorStatus,
		NewStatus:   api.StatusFailed,
		StepIndex:   inst.CurrentStep,
		Detail:      reason,
		RecordedAt:  s.now(),
	}
	if err := s.log.Append(ctx, entry); err != nil {
		return inst, err
	}

	inst.Status = api.StatusFailed
	inst.FailureReason = reason
	inst.UpdatedAt = s.now()
	if err := s.instances.UpdateInstance(inst); err != nil {
		return inst, err
	}

	s.settleTerminal(ctx, def, inst)
	return inst, nil
}

// settleTerminal releases routing state and notifies the observer for an
// instance that just reached a terminal status.
func (s *supervisorImpl) settleTerminal(ctx context.Context, def *api.CompiledDefinition, inst *api.Instance) {
	s.router.Release(def, inst)

	switch inst.Status {
	case api.StatusCompleted:
		s.observer.OnQuestCompleted(ctx, inst)
	case api.StatusFailed:
		s.observer.OnQuestFailed(ctx, inst, inst.FailureReason)
	}
}

func (s *supervisorImpl) GetInstance(ctx context.Context, id string) (*api.Instance, error) {
	return s.instances.GetInstance(id)
}

func (s *supervisorImpl) ListInstances(ctx context.Context, opts api.InstanceListOptions) ([]*api.Instance, error) {
	return s.instances.ListInstances(persistence.InstanceFilter{
		DefinitionID: opts.DefinitionID,
		Status:       opts.Status,
		ActiveOnly:   opts.ActiveOnly,
	})
}

func (s *supervisorImpl) ListActive(ctx context.Context, definitionID string) ([]*api.Instance, error) {
	return s.instances.ListInstances(persistence.InstanceFilter{
		DefinitionID: definitionID,
		ActiveOnly:   true,
	})
}

func (s *supervisorImpl) History(ctx context.Context, instanceID string) ([]api.LogEntry, error) {
	if _, err := s.instances.GetInstance(instanceID); err != nil {
		return nil, err
	}
	return s.log.List(ctx, instanceID)
}

func (s *supervisorImpl) Cancel(ctx context.Context, instanceID string, reason string) (*api.Instance, error) {
	probe, err := s.instances.GetInstance(instanceID)
	if err != nil {
		return nil, err
	}

	s.keys.Lock(probe.CorrelationKey)
	defer s.keys.Unlock(probe.CorrelationKey)

	// Reload under the lock; the instance may have settled meanwhile.
	inst, err := s.instances.GetInstance(instanceID)
	if err != nil {
		return nil, err
	}
	def, err := s.definitions.GetDefinition(inst.DefinitionID)
	if err != nil {
		return nil, err
	}

	out, err := transition.Cancel(def, inst, reason)
	if err != nil {
		return nil, err
	}

	seq, err := s.log.LastSeq(ctx, inst.ID)
	if err != nil {
		return nil, err
	}

	commandID := ""
	if out.Command != nil {
		commandID = dispatch.CommandID(inst.ID, out.Command.StepName, 1)
	}

	// Write-ahead: the cancellation is durable before any effect.
	entry := api.LogEntry{
		InstanceID:  inst.ID,
		Seq:         seq + 1,
		PriorStatus: inst.Status,
		NewStatus:   out.NewStatus,
		StepIndex:   out.NewStep,
		CommandID:   commandID,
		Detail:      "cancelled: " + reason,
		RecordedAt:  s.now(),
	}
	if err := s.log.Append(ctx, entry); err != nil {
		return nil, err
	}

	priorStep := inst.CurrentStep
	inst.Status = out.NewStatus
	inst.CurrentStep = out.NewStep
	inst.FailureReason = out.FailureReason
	inst.UpdatedAt = s.now()

	if out.Command != nil {
		inst.Commands = append(inst.Commands, api.CommandRecord{
			StepName:     out.Command.StepName,
			CommandID:    commandID,
			DispatchedAt: inst.UpdatedAt,
		})
	}

	if err := s.instances.UpdateInstance(inst); err != nil {
		return inst, err
	}

	if out.NewStatus == api.StatusRunning {
		s.router.Rearm(def, inst, priorStep)
	}

	return s.dispatchAndSettle(ctx, def, inst, out, nil)
}

func (s *supervisorImpl) RecoverActive(ctx context.Context) (int, error) {
	// Re-arm start triggers first so recovered and future events route alike.
	defs, err := s.definitions.ListDefinitions()
	if err != nil {
		return 0, err
	}
	for _, def := range defs {
		if err := s.router.RegisterDefinition(def); err != nil {
			return 0, err
		}
	}

	active, err := s.instances.ListInstances(persistence.InstanceFilter{ActiveOnly: true})
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, inst := range active {
		def, err := s.definitions.GetDefinition(inst.DefinitionID)
		if err != nil {
			return recovered, fmt.Errorf("instance %s references unknown definition %s: %w",
				inst.ID, inst.DefinitionID, err)
		}

		s.keys.Lock(inst.CorrelationKey)

		switch inst.Status {
		case api.StatusRunning:
			s.router.Bind(def, inst)
			if err := s.redispatchUnacked(ctx, def, inst); err != nil {
				s.keys.Unlock(inst.CorrelationKey)
				return recovered, err
			}

		case api.StatusCompensating:
			// Crash between the compensation transition and its settle
			// entry. The pending record, persisted with the transition,
			// carries the payload. When the command was never acknowledged,
			// re-issue it (duplicate dispatch is the accepted cost); either
			// way, settle.
			if n := len(inst.Commands); n > 0 && inst.Commands[n-1].Acked {
				if _, err := s.settleCompensated(ctx, def, inst); err != nil {
					s.keys.Unlock(inst.CorrelationKey)
					return recovered, err
				}
				break
			}

			step := def.StepAt(inst.CurrentStep)
			if cmdType, ok := def.CompensationFor(step.OnFailure); ok {
				var payload any
				if n := len(inst.Commands); n > 0 {
					payload = inst.Commands[n-1].Payload
				}
				out := transition.Outcome{
					Applied:   true,
					NewStatus: api.StatusCompensating,
					NewStep:   inst.CurrentStep,
					Command: &transition.CommandIntent{
						StepName:     step.Name,
						CommandType:  cmdType,
						Compensation: true,
					},
				}
				if _, err := s.dispatchAndSettle(ctx, def, inst, out, payload); err != nil {
					s.keys.Unlock(inst.CorrelationKey)
					return recovered, err
				}
			}
		}

		s.keys.Unlock(inst.CorrelationKey)
		recovered++
	}
	return recovered, nil
}

// redispatchUnacked re-issues the last command when its dispatch was never
// acknowledged, payload and all, so a crash mid-dispatch costs at most a
// duplicate.
func (s *supervisorImpl) redispatchUnacked(ctx context.Context, def *api.CompiledDefinition, inst *api.Instance) error {
	n := len(inst.Commands)
	if n == 0 || inst.Commands[n-1].Acked {
		return nil
	}

	last := inst.Commands[n-1]
	step := def.StepAt(inst.CurrentStep)

	cmd, _, err := s.dispatcher.Dispatch(ctx, inst, step.Name, step.Command, last.Payload)
	if err != nil {
		var exhausted *dispatch.ExhaustedError
		if errors.As(err, &exhausted) {
			_, ferr := s.failExhausted(ctx, def, inst, exhausted)
			return ferr
		}
		return err
	}

	last.CommandID = cmd.ID
	last.Acked = true
	last.DispatchedAt = s.now()
	inst.Commands[n-1] = last
	inst.UpdatedAt = s.now()
	return s.instances.UpdateInstance(inst)
}
