package quest

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/quest/internal/dispatch"
	"github.com/petrijr/quest/internal/persistence"
	"github.com/petrijr/quest/internal/supervisor"
	"github.com/petrijr/quest/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Supervisor           = api.Supervisor
	Definition           = api.Definition
	CompiledDefinition   = api.CompiledDefinition
	Trigger              = api.Trigger
	Step                 = api.Step
	Event                = api.Event
	Command              = api.Command
	CommandSink          = api.CommandSink
	Instance             = api.Instance
	InstanceListOptions  = api.InstanceListOptions
	LogEntry             = api.LogEntry
	Status               = api.Status
	RetryPolicy          = api.RetryPolicy
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	Compile              = api.Compile
	MustCompile          = api.MustCompile
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
	DefaultRetryPolicy   = api.DefaultRetryPolicy
)

// Re-export status values for convenience.

const (
	StatusRunning      = api.StatusRunning
	StatusCompleted    = api.StatusCompleted
	StatusFailed       = api.StatusFailed
	StatusCompensating = api.StatusCompensating
	StatusCompensated  = api.StatusCompensated
)

// SupervisorOptions carries the optional knobs shared by every backend
// constructor. The zero value means NoopObserver and DefaultRetryPolicy.
type SupervisorOptions struct {
	Observer Observer
	Retry    RetryPolicy
}

// Supervisor constructors
// These wrap the internal packages so external callers never need to import
// them. Every supervisor needs a CommandSink; commands the engine decides to
// issue leave the process through it.

// NewInMemorySupervisor returns a Supervisor backed entirely by in-memory
// stores. State does not survive a restart; intended for development and
// tests.
func NewInMemorySupervisor(sink CommandSink) Supervisor {
	return NewInMemorySupervisorWithOptions(sink, SupervisorOptions{})
}

// NewInMemorySupervisorWithObserver returns an in-memory Supervisor with the
// given Observer.
func NewInMemorySupervisorWithObserver(sink CommandSink, obs Observer) Supervisor {
	return NewInMemorySupervisorWithOptions(sink, SupervisorOptions{Observer: obs})
}

// NewInMemorySupervisorWithOptions returns an in-memory Supervisor with full
// control over options.
func NewInMemorySupervisorWithOptions(sink CommandSink, opts SupervisorOptions) Supervisor {
	store := persistence.NewInMemoryStore()
	return newSupervisor(persistence.Persistence{
		Definitions: store,
		Instances:   store,
		Log:         store,
	}, sink, opts)
}

// NewSQLiteSupervisor returns a Supervisor that persists quest instances and
// the quest log in a SQLite database. Definitions are kept in-memory and
// must be re-registered on startup, followed by RecoverActive.
func NewSQLiteSupervisor(db *sql.DB, sink CommandSink) (Supervisor, error) {
	return NewSQLiteSupervisorWithOptions(db, sink, SupervisorOptions{})
}

// NewSQLiteSupervisorWithObserver returns a SQLite-backed Supervisor with
// the given Observer.
func NewSQLiteSupervisorWithObserver(db *sql.DB, sink CommandSink, obs Observer) (Supervisor, error) {
	return NewSQLiteSupervisorWithOptions(db, sink, SupervisorOptions{Observer: obs})
}

// NewSQLiteSupervisorWithOptions returns a SQLite-backed Supervisor with
// full control over options.
func NewSQLiteSupervisorWithOptions(db *sql.DB, sink CommandSink, opts SupervisorOptions) (Supervisor, error) {
	instances, err := persistence.NewSQLiteInstanceStore(db)
	if err != nil {
		return nil, err
	}
	log, err := persistence.NewSQLiteLogStore(db)
	if err != nil {
		return nil, err
	}
	return newSupervisor(persistence.Persistence{
		Definitions: persistence.NewInMemoryStore(),
		Instances:   instances,
		Log:         log,
	}, sink, opts), nil
}

// NewPostgresSupervisor returns a Supervisor that persists instances and the
// quest log in PostgreSQL. The caller supplies the *sql.DB and its driver.
func NewPostgresSupervisor(db *sql.DB, sink CommandSink) (Supervisor, error) {
	return NewPostgresSupervisorWithOptions(db, sink, SupervisorOptions{})
}

// NewPostgresSupervisorWithObserver returns a Postgres-backed Supervisor
// with the given Observer.
func NewPostgresSupervisorWithObserver(db *sql.DB, sink CommandSink, obs Observer) (Supervisor, error) {
	return NewPostgresSupervisorWithOptions(db, sink, SupervisorOptions{Observer: obs})
}

// NewPostgresSupervisorWithOptions returns a Postgres-backed Supervisor with
// full control over options.
func NewPostgresSupervisorWithOptions(db *sql.DB, sink CommandSink, opts SupervisorOptions) (Supervisor, error) {
	instances, err := persistence.NewPostgresInstanceStore(db)
	if err != nil {
		return nil, err
	}
	log, err := persistence.NewPostgresLogStore(db)
	if err != nil {
		return nil, err
	}
	return newSupervisor(persistence.Persistence{
		Definitions: persistence.NewInMemoryStore(),
		Instances:   instances,
		Log:         log,
	}, sink, opts), nil
}

// NewRedisSupervisor returns a Supervisor that persists instances and the
// quest log in Redis.
func NewRedisSupervisor(client *redis.Client, sink CommandSink) Supervisor {
	return NewRedisSupervisorWithOptions(client, sink, SupervisorOptions{})
}

// NewRedisSupervisorWithObserver returns a Redis-backed Supervisor with the
// given Observer.
func NewRedisSupervisorWithObserver(client *redis.Client, sink CommandSink, obs Observer) Supervisor {
	return NewRedisSupervisorWithOptions(client, sink, SupervisorOptions{Observer: obs})
}

// NewRedisSupervisorWithOptions returns a Redis-backed Supervisor with full
// control over options.
func NewRedisSupervisorWithOptions(client *redis.Client, sink CommandSink, opts SupervisorOptions) Supervisor {
	return newSupervisor(persistence.Persistence{
		Definitions: persistence.NewInMemoryStore(),
		Instances:   persistence.NewRedisInstanceStore(client, "quest:"),
		Log:         persistence.NewRedisLogStore(client, "quest:"),
	}, sink, opts)
}

func newSupervisor(p persistence.Persistence, sink CommandSink, opts SupervisorOptions) Supervisor {
	return supervisor.NewWithConfig(supervisor.Config{
		Persistence: p,
		Sink:        sink,
		Retry:       opts.Retry,
		Observer:    opts.Observer,
	})
}

// Convenience helpers that just forward to the underlying Supervisor.

// Deliver routes one event through the supervisor.
func Deliver(ctx context.Context, sup Supervisor, ev Event) (*Instance, error) {
	return sup.Deliver(ctx, ev)
}

// GetInstance fetches an instance by ID.
func GetInstance(ctx context.Context, sup Supervisor, id string) (*Instance, error) {
	return sup.GetInstance(ctx, id)
}

// ListInstances lists quest instances according to the given options.
func ListInstances(ctx context.Context, sup Supervisor, opts InstanceListOptions) ([]*Instance, error) {
	return sup.ListInstances(ctx, opts)
}

// CommandID returns the deterministic command identifier the dispatcher
// derives for one dispatch attempt. Downstream handlers can use it to dedupe
// at-least-once deliveries.
func CommandID(instanceID, stepName string, attempt int) string {
	return dispatch.CommandID(instanceID, stepName, attempt)
}
