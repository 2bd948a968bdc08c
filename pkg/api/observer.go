package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the quest engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay event processing.
type Observer interface {
	// OnQuestStart is called once when an instance is born from a start
	// trigger, after the birth is logged.
	OnQuestStart(ctx context.Context, inst *Instance)

	// OnEventApplied is called after an event mutates an instance.
	OnEventApplied(ctx context.Context, inst *Instance, ev Event)

	// OnEventDropped is called when the router or transition engine
	// discards an event: unknown type, stale trigger, or duplicate ID.
	OnEventDropped(ctx context.Context, ev Event, reason string)

	// OnCommandDispatched is called after a command is accepted by the
	// sink. attempt is 1-based; d is the total time spent dispatching,
	// including backoff.
	OnCommandDispatched(ctx context.Context, inst *Instance, cmd Command, attempt int, d time.Duration)

	// OnDispatchRetry is called before each retry of a failed dispatch.
	OnDispatchRetry(ctx context.Context, inst *Instance, cmd Command, attempt int, err error)

	// OnCompensation is called when an instance dispatches its
	// compensating command.
	OnCompensation(ctx context.Context, inst *Instance, cmd Command)

	// OnQuestCompleted is called when an instance reaches StatusCompleted.
	OnQuestCompleted(ctx context.Context, inst *Instance)

	// OnQuestFailed is called when an instance reaches StatusFailed.
	OnQuestFailed(ctx context.Context, inst *Instance, reason string)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnQuestStart(ctx context.Context, inst *Instance)           {}
func (NoopObserver) OnEventApplied(ctx context.Context, inst *Instance, ev Event) {}
func (NoopObserver) OnEventDropped(ctx context.Context, ev Event, reason string)  {}
func (NoopObserver) OnCommandDispatched(ctx context.Context, inst *Instance, cmd Command, attempt int, d time.Duration) {
}
func (NoopObserver) OnDispatchRetry(ctx context.Context, inst *Instance, cmd Command, attempt int, err error) {
}
func (NoopObserver) OnCompensation(ctx context.Context, inst *Instance, cmd Command)    {}
func (NoopObserver) OnQuestCompleted(ctx context.Context, inst *Instance)               {}
func (NoopObserver) OnQuestFailed(ctx context.Context, inst *Instance, reason string)   {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnQuestStart(ctx context.Context, inst *Instance) {
	for _, o := range c.observers {
		o.OnQuestStart(ctx, inst)
	}
}

func (c *CompositeObserver) OnEventApplied(ctx context.Context, inst *Instance, ev Event) {
	for _, o := range c.observers {
		o.OnEventApplied(ctx, inst, ev)
	}
}

func (c *CompositeObserver) OnEventDropped(ctx context.Context, ev Event, reason string) {
	for _, o := range c.observers {
		o.OnEventDropped(ctx, ev, reason)
	}
}

func (c *CompositeObserver) OnCommandDispatched(ctx context.Context, inst *Instance, cmd Command, attempt int, d time.Duration) {
	for _, o := range c.observers {
		o.OnCommandDispatched(ctx, inst, cmd, attempt, d)
	}
}

func (c *CompositeObserver) OnDispatchRetry(ctx context.Context, inst *Instance, cmd Command, attempt int, err error) {
	for _, o := range c.observers {
		o.OnDispatchRetry(ctx, inst, cmd, attempt, err)
	}
}

func (c *CompositeObserver) OnCompensation(ctx context.Context, inst *Instance, cmd Command) {
	for _, o := range c.observers {
		o.OnCompensation(ctx, inst, cmd)
	}
}

func (c *CompositeObserver) OnQuestCompleted(ctx context.Context, inst *Instance) {
	for _, o := range c.observers {
		o.OnQuestCompleted(ctx, inst)
	}
}

func (c *CompositeObserver) OnQuestFailed(ctx context.Context, inst *Instance, reason string) {
	for _, o := range c.observers {
		o.OnQuestFailed(ctx, inst, reason)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs quest lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnQuestStart(ctx context.Context, inst *Instance) {
	o.Logger.InfoContext(ctx, "quest_start",
		slog.String("definition", inst.DefinitionID),
		slog.String("instance_id", inst.ID),
		slog.String("correlation_key", inst.CorrelationKey),
	)
}

func (o *LoggingObserver) OnEventApplied(ctx context.Context, inst *Instance, ev Event) {
	o.Logger.InfoContext(ctx, "event_applied",
		slog.String("instance_id", inst.ID),
		slog.String("event_id", ev.ID),
		slog.String("event_type", ev.Type),
		slog.String("status", string(inst.Status)),
		slog.Int("step", inst.CurrentStep),
	)
}

func (o *LoggingObserver) OnEventDropped(ctx context.Context, ev Event, reason string) {
	o.Logger.DebugContext(ctx, "event_dropped",
		slog.String("event_id", ev.ID),
		slog.String("event_type", ev.Type),
		slog.String("correlation_key", ev.CorrelationKey),
		slog.String("reason", reason),
	)
}

func (o *LoggingObserver) OnCommandDispatched(ctx context.Context, inst *Instance, cmd Command, attempt int, d time.Duration) {
	o.Logger.InfoContext(ctx, "command_dispatched",
		slog.String("instance_id", inst.ID),
		slog.String("command_id", cmd.ID),
		slog.String("command_type", cmd.Type),
		slog.Int("attempt", attempt),
		slog.Duration("duration", d),
	)
}

func (o *LoggingObserver) OnDispatchRetry(ctx context.Context, inst *Instance, cmd Command, attempt int, err error) {
	o.Logger.WarnContext(ctx, "dispatch_retry",
		slog.String("instance_id", inst.ID),
		slog.String("command_id", cmd.ID),
		slog.Int("attempt", attempt),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnCompensation(ctx context.Context, inst *Instance, cmd Command) {
	o.Logger.WarnContext(ctx, "compensation_dispatched",
		slog.String("instance_id", inst.ID),
		slog.String("command_id", cmd.ID),
		slog.String("command_type", cmd.Type),
	)
}

func (o *LoggingObserver) OnQuestCompleted(ctx context.Context, inst *Instance) {
	o.Logger.InfoContext(ctx, "quest_completed",
		slog.String("definition", inst.DefinitionID),
		slog.String("instance_id", inst.ID),
	)
}

func (o *LoggingObserver) OnQuestFailed(ctx context.Context, inst *Instance, reason string) {
	o.Logger.ErrorContext(ctx, "quest_failed",
		slog.String("definition", inst.DefinitionID),
		slog.String("instance_id", inst.ID),
		slog.String("reason", reason),
	)
}

// BasicMetrics collects simple counters and aggregate dispatch durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	questsStarted      atomic.Int64
	questsCompleted    atomic.Int64
	questsFailed       atomic.Int64
	questsCompensated  atomic.Int64
	eventsApplied      atomic.Int64
	eventsDropped      atomic.Int64
	commandsDispatched atomic.Int64
	dispatchRetries    atomic.Int64
	totalDispatchTime  atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	QuestsStarted     int64
	QuestsCompleted   int64
	QuestsFailed      int64
	QuestsCompensated int64
	ActiveQuests      int64

	EventsApplied int64
	EventsDropped int64

	CommandsDispatched int64
	DispatchRetries    int64
	AvgDispatchTime    time.Duration
}

func (m *BasicMetrics) OnQuestStart(ctx context.Context, inst *Instance) {
	m.questsStarted.Add(1)
}

func (m *BasicMetrics) OnEventApplied(ctx context.Context, inst *Instance, ev Event) {
	m.eventsApplied.Add(1)
}

func (m *BasicMetrics) OnEventDropped(ctx context.Context, ev Event, reason string) {
	m.eventsDropped.Add(1)
}

func (m *BasicMetrics) OnCommandDispatched(ctx context.Context, inst *Instance, cmd Command, attempt int, d time.Duration) {
	m.commandsDispatched.Add(1)
	m.totalDispatchTime.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnDispatchRetry(ctx context.Context, inst *Instance, cmd Command, attempt int, err error) {
	m.dispatchRetries.Add(1)
}

func (m *BasicMetrics) OnCompensation(ctx context.Context, inst *Instance, cmd Command) {
	m.questsCompensated.Add(1)
}

func (m *BasicMetrics) OnQuestCompleted(ctx context.Context, inst *Instance) {
	m.questsCompleted.Add(1)
}

func (m *BasicMetrics) OnQuestFailed(ctx context.Context, inst *Instance, reason string) {
	m.questsFailed.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.questsStarted.Load()
	completed := m.questsCompleted.Load()
	failed := m.questsFailed.Load()
	compensated := m.questsCompensated.Load()
	dispatched := m.commandsDispatched.Load()
	totalNs := m.totalDispatchTime.Load()

	var avg time.Duration
	if dispatched > 0 {
		avg = time.Duration(totalNs / dispatched)
	}

	return BasicMetricsSnapshot{
		QuestsStarted:     started,
		QuestsCompleted:   completed,
		QuestsFailed:      failed,
		QuestsCompensated: compensated,
		ActiveQuests:      started - completed - failed - compensated,

		EventsApplied: m.eventsApplied.Load(),
		EventsDropped: m.eventsDropped.Load(),

		CommandsDispatched: dispatched,
		DispatchRetries:    m.dispatchRetries.Load(),
		AvgDispatchTime:    avg,
	}
}
