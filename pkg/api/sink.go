package api

import (
	"context"
	"time"
)

// CommandSink is the external command transport. Deliver must return nil
// only once the command has been durably accepted; transient failures are
// retried by the dispatcher under the configured RetryPolicy.
//
// Delivery is at-least-once. Handlers behind the sink are expected to dedupe
// on the command ID, which is deterministic per (instance, step, attempt).
type CommandSink interface {
	Deliver(ctx context.Context, cmd Command) error
}

// RetryPolicy controls dispatch retries. MaxAttempts includes the first
// attempt; InitialBackoff grows by BackoffMultiplier per retry, capped at
// MaxBackoff when > 0.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy is used when a supervisor is configured without one.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:       5,
	InitialBackoff:    50 * time.Millisecond,
	MaxBackoff:        2 * time.Second,
	BackoffMultiplier: 2.0,
}
