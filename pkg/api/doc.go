// Package api contains the core building blocks used by the quest engine.
// It provides the low-level primitives for describing quests, inspecting
// instances, and observing engine behavior.
//
// Most users interact with the higher-level quest package, which re-exports
// selected types and helpers from this package. The api package is intended
// for advanced use cases, custom integrations, or contributors extending the
// engine itself.
//
// # Concepts
//
// The api package centers around a small set of concepts:
//
//   - Quest definitions
//   - Events and commands
//   - Quest instances and the quest log
//   - Observability
//
// # Quest Definitions
//
// A quest definition describes the structure of a long-running business
// transaction: the event that births it, the ordered steps it advances
// through, the event that completes it, and the compensating commands issued
// when a step fails.
//
// Definitions are immutable data. They are compiled once via Compile, which
// validates the step chain and builds the closed event-to-transition routing
// tables used at runtime; the engine never re-interprets a definition per
// event and never spawns instances against a definition that failed to
// compile.
//
// # Events and Commands
//
// Events are observed facts consumed from an external bus with
// at-least-once delivery; each carries a globally unique ID used for
// deduplication and a correlation key scoping it to one quest instance.
// Commands are instructions the engine emits for external handlers; their
// IDs are deterministic per (instance, step, attempt) so retried dispatches
// are recognizable as duplicates downstream.
//
// # Instances and the Quest Log
//
// An Instance is the mutable runtime record of one quest's progress. Every
// state change is appended to the quest log before any externally visible
// effect, making the log the authoritative source for crash recovery and
// operator inspection.
//
// # Observability
//
// The Observer interface reports lifecycle events: instance birth, event
// application and drops, command dispatch and retries, compensation, and
// terminal outcomes. Ready-made implementations cover structured logging
// (log/slog) and in-memory counters, with a helper to combine several
// observers; a Prometheus-backed observer lives in pkg/metrics.
//
// # Usage
//
// Most applications should start from the quest package, using the
// definition builder and supervisor constructors provided there. See the
// quest package documentation and the examples directory for end-to-end
// usage.
package api
