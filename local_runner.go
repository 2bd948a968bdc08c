package quest

import (
	"context"

	"github.com/petrijr/quest/internal/eventsource"
)

// LocalRunner bundles an in-memory Supervisor, an in-memory event source,
// and pump goroutines to provide a simple "local runner" for development and
// debugging.
//
// Pumps are sharded by correlation key: events sharing a key are always
// delivered by the same pump, in publish order, while distinct keys proceed
// concurrently. This is the ordering guarantee Deliver documents.
//
// Typical usage:
//
//	runner := quest.NewLocalRunner(mySink)
//	def := quest.NewDefinition("order").StartsOn(...).Step(...).MustBuild()
//	_ = runner.Supervisor.RegisterDefinition(def)
//
//	_ = runner.StartPumps(ctx, 4)
//	_ = runner.Publish(ctx, ev)
//	...
//	runner.Stop()
//
// LocalRunner is intentionally not crash-durable. For durable deployments
// use NewSQLiteBundle or NewRedisBundle.
type LocalRunner struct {
	// Supervisor is the in-memory quest supervisor used by this runner.
	Supervisor Supervisor

	// Source is the in-memory event source the pumps consume from.
	Source *eventsource.InMemorySource

	pumps pumpGroup
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory supervisor
// and event source. Commands leave through the given sink.
func NewLocalRunner(sink CommandSink) *LocalRunner {
	return NewLocalRunnerWithOptions(sink, SupervisorOptions{})
}

// NewLocalRunnerWithOptions is NewLocalRunner with supervisor options.
func NewLocalRunnerWithOptions(sink CommandSink, opts SupervisorOptions) *LocalRunner {
	return &LocalRunner{
		Supervisor: NewInMemorySupervisorWithOptions(sink, opts),
		Source:     eventsource.NewInMemorySource(1024),
	}
}

// Publish makes an event available to the pumps. If the pumps are not
// running the event waits in the source buffer.
func (r *LocalRunner) Publish(ctx context.Context, ev Event) error {
	return r.Source.Publish(ctx, ev)
}

// StartPumps starts 'shards' pump goroutines that deliver events from the
// source to the supervisor until the context is cancelled via Stop.
//
// If StartPumps is called more than once without Stop, it returns an error.
func (r *LocalRunner) StartPumps(ctx context.Context, shards int) error {
	return r.pumps.start(ctx, r.Source, r.Supervisor, shards)
}

// Stop cancels the pumps started by StartPumps and waits for them to exit.
// Events still buffered in the source remain there.
func (r *LocalRunner) Stop() {
	r.pumps.stop()
}
