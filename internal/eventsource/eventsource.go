// Package eventsource defines the injected event-bus capability the engine
// consumes from. The transport itself is an external collaborator; this
// package provides the interface plus an in-memory source for local use and
// a Redis-backed source for multi-process deployments.
package eventsource

import (
	"bytes"
	"context"
	"encoding/gob"

	"github.com/petrijr/quest/pkg/api"
)

// Source is a stream of inbound events. Publish and Receive are safe for
// concurrent use. Delivery is at-least-once; the engine dedupes on event ID.
type Source interface {
	// Publish makes an event available to consumers.
	Publish(ctx context.Context, ev api.Event) error

	// Receive blocks until an event is available or ctx is cancelled.
	Receive(ctx context.Context) (*api.Event, error)

	// Len returns the approximate number of buffered events.
	Len() int
}

// InMemorySource is a Source backed by a buffered channel.
type InMemorySource struct {
	ch chan api.Event
}

// NewInMemorySource creates a source with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func NewInMemorySource(capacity int) *InMemorySource {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemorySource{ch: make(chan api.Event, capacity)}
}

var _ Source = (*InMemorySource)(nil)

func (s *InMemorySource) Publish(ctx context.Context, ev api.Event) error {
	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *InMemorySource) Receive(ctx context.Context) (*api.Event, error) {
	select {
	case ev := <-s.ch:
		return &ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *InMemorySource) Len() int {
	return len(s.ch)
}

// EncodeEvent gob-encodes an Event for transport.
func EncodeEvent(ev api.Event) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&ev); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEvent gob-decodes an Event.
func DecodeEvent(data []byte) (*api.Event, error) {
	var ev api.Event
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
