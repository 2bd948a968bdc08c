// Package quest provides a lightweight, embeddable saga engine for Go.
//
// Quest coordinates long-running, multi-step business transactions that span
// multiple services via event choreography: the engine reacts to domain
// events, emits commands toward external systems, and runs compensating
// actions when a step fails partway. It runs fully in Go, supports multiple
// persistence backends, and integrates cleanly into existing codebases.
//
// # Core Concepts
//
// The Quest programming model is intentionally small:
//
//  1. Definition
//  2. Supervisor
//  3. Event and Command
//  4. CommandSink
//  5. LocalRunner
//
// These components form a complete saga system with durable state (when
// using persistent backends), write-ahead logging of every transition, and a
// clear mental model.
//
// # Definition
//
// A Definition is data: a start trigger, an ordered chain of steps, a
// completion event, and a table of compensating commands keyed by failure
// event type. Each step names the command dispatched when the step is
// entered and the event types that report success or failure.
//
// Definitions are compiled once with Compile (or DefinitionBuilder.Build),
// which validates them structurally: the step chain must be contiguous, the
// completion event must be the final step's success event, and every event
// type must be an unambiguous routing key within the definition. An invalid
// definition never reaches the engine.
//
// # Supervisor
//
// The Supervisor owns instance lifecycle. It routes inbound events, births
// instances from start triggers, serializes all mutation per correlation
// key, appends every transition to an append-only quest log before any
// external effect, and recovers non-terminal instances after a restart.
//
// Supervisors can be backed by different storage systems:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability)
//   - Postgres
//   - Redis
//
// An instance moves through Running, and settles in Completed, Failed, or
// Compensated (via Compensating). Terminal instances are archived, never
// deleted, and stay queryable through ListInstances and History.
//
// # Event and Command
//
// Events are facts that happened elsewhere; commands are requests the engine
// issues toward external systems. Both carry a correlation key (typically a
// business entity ID such as an order number) that ties them to one quest
// instance.
//
// Event delivery is at-least-once. The engine dedupes on event ID, so
// redelivering an event is always safe. Commands carry deterministic IDs
// derived from the instance, step, and attempt, so downstream handlers can
// dedupe the same way.
//
// # CommandSink
//
// A CommandSink is where dispatched commands leave the process: a message
// broker, an HTTP client, or a test capture. The engine retries transient
// sink failures with exponential backoff under a configurable RetryPolicy;
// when attempts are exhausted the quest fails visibly rather than silently.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory supervisor, an in-memory event source,
// and pump goroutines sharded by correlation key into a single
// process-local helper useful for development and unit testing. Events for
// one key are delivered in order; distinct keys proceed concurrently.
//
// LocalRunner is intentionally not crash-durable, but it provides the most
// convenient way to run and debug quests during development.
//
// # Summary
//
// Quest's goal is to give Go developers a saga engine that feels like Go:
// easy to embed, easy to test, deterministic, and without operational
// overhead. Definitions describe the transaction, the Supervisor drives it,
// events move it forward, commands and compensations act on the outside
// world, and LocalRunner provides a fast, developer-friendly runtime.
//
// For examples, see the /examples directory or the project README.
package quest
