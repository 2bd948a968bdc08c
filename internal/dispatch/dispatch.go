// Package dispatch delivers outbound commands to an injected sink with
// deterministic IDs, exponential backoff, and a bounded attempt count.
// Delivery is at-least-once; downstream handlers are expected to dedupe on
// the command ID.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/petrijr/quest/pkg/api"
)

// Sink is the external command transport, defined in pkg/api so facade
// callers can implement it without importing internal packages.
type Sink = api.CommandSink

// RetryPolicy controls dispatch retries.
type RetryPolicy = api.RetryPolicy

// DefaultRetryPolicy is used when the caller configures nothing.
var DefaultRetryPolicy = api.DefaultRetryPolicy

// CommandID derives the deterministic command identifier for one dispatch
// attempt. Retries of the same attempt produce the same ID, so downstream
// handlers can recognize duplicates.
func CommandID(instanceID, stepName string, attempt int) string {
	return fmt.Sprintf("%s:%s:%d", instanceID, stepName, attempt)
}

// ExhaustedError is returned when every allowed attempt failed. The
// supervisor turns it into a visible Failed transition, never a silent drop.
type ExhaustedError struct {
	CommandType string
	Attempts    int
	LastErr     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("dispatch of %s exhausted after %d attempts: %v", e.CommandType, e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Dispatcher delivers commands for the supervisor.
type Dispatcher struct {
	sink     Sink
	policy   RetryPolicy
	observer api.Observer
	now      func() time.Time
}

// New creates a Dispatcher. A zero-valued policy falls back to
// DefaultRetryPolicy; a nil observer falls back to NoopObserver.
func New(sink Sink, policy RetryPolicy, obs api.Observer) *Dispatcher {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy
	}
	if policy.BackoffMultiplier <= 0 {
		policy.BackoffMultiplier = 2.0
	}
	if obs == nil {
		obs = api.NoopObserver{}
	}
	return &Dispatcher{
		sink:     sink,
		policy:   policy,
		observer: obs,
		now:      time.Now,
	}
}

// Dispatch delivers one command, retrying with backoff until the sink
// accepts it or attempts are exhausted. It returns the accepted command and
// the attempt that succeeded. On exhaustion it returns the last attempted
// command and an *ExhaustedError.
func (d *Dispatcher) Dispatch(ctx context.Context, inst *api.Instance, stepName, commandType string, payload any) (api.Command, int, error) {
	start := d.now()

	backoff := d.policy.InitialBackoff
	var lastErr error
	var cmd api.Command

	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		cmd = api.Command{
			ID:             CommandID(inst.ID, stepName, attempt),
			Type:           commandType,
			CorrelationKey: inst.CorrelationKey,
			Payload:        payload,
			IssuedAt:       d.now(),
		}

		err := d.sink.Deliver(ctx, cmd)
		if err == nil {
			d.observer.OnCommandDispatched(ctx, inst, cmd, attempt, d.now().Sub(start))
			return cmd, attempt, nil
		}
		lastErr = err

		if attempt == d.policy.MaxAttempts {
			break
		}

		d.observer.OnDispatchRetry(ctx, inst, cmd, attempt, err)

		if backoff > 0 {
			delay := backoff
			if d.policy.MaxBackoff > 0 && delay > d.policy.MaxBackoff {
				delay = d.policy.MaxBackoff
			}

			select {
			case <-ctx.Done():
				return cmd, attempt, ctx.Err()
			case <-time.After(delay):
			}

			next := time.Duration(float64(backoff) * d.policy.BackoffMultiplier)
			if d.policy.MaxBackoff > 0 && next > d.policy.MaxBackoff {
				backoff = d.policy.MaxBackoff
			} else {
				backoff = next
			}
		}
	}

	return cmd, d.policy.MaxAttempts, &ExhaustedError{
		CommandType: commandType,
		Attempts:    d.policy.MaxAttempts,
		LastErr:     lastErr,
	}
}
