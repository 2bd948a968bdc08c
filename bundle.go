package quest

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/quest/internal/eventsource"
)

// Bundle wires together a Supervisor and an event source, with pump
// goroutines delivering events from the source to the supervisor. It is the
// durable counterpart of LocalRunner.
//
// Typical usage:
//
//	db, _ := sql.Open("sqlite", "file:quest.db?_journal=WAL")
//	bundle, err := quest.NewSQLiteBundle(db, mySink, quest.SupervisorOptions{})
//	// register definitions on bundle.Supervisor, then:
//	_, _ = bundle.Supervisor.RecoverActive(ctx)
//	_ = bundle.StartPumps(ctx, 4)
type Bundle struct {
	Supervisor Supervisor
	Source     eventsource.Source

	pumps pumpGroup
}

// NewSQLiteBundle constructs a SQLite-backed Supervisor with an in-memory
// event source. Quest state survives restarts; buffered events do not, which
// is acceptable for at-least-once buses that redeliver unacknowledged
// events.
func NewSQLiteBundle(db *sql.DB, sink CommandSink, opts SupervisorOptions) (*Bundle, error) {
	sup, err := NewSQLiteSupervisorWithOptions(db, sink, opts)
	if err != nil {
		return nil, err
	}
	return &Bundle{
		Supervisor: sup,
		Source:     eventsource.NewInMemorySource(1024),
	}, nil
}

// NewRedisBundle constructs a Redis-backed Supervisor consuming from a
// Redis-backed event source on the same client. Both quest state and
// buffered events survive restarts, and multiple processes may share the
// source.
func NewRedisBundle(client *redis.Client, sink CommandSink, opts SupervisorOptions) *Bundle {
	return &Bundle{
		Supervisor: NewRedisSupervisorWithOptions(client, sink, opts),
		Source:     eventsource.NewRedisSource(client, "quest:"),
	}
}

// Publish makes an event available to the pumps.
func (b *Bundle) Publish(ctx context.Context, ev Event) error {
	return b.Source.Publish(ctx, ev)
}

// StartPumps starts 'shards' pump goroutines delivering events from the
// source to the supervisor. Events sharing a correlation key are always
// handled by the same pump, in order.
func (b *Bundle) StartPumps(ctx context.Context, shards int) error {
	return b.pumps.start(ctx, b.Source, b.Supervisor, shards)
}

// Stop cancels the pumps and waits for them to exit.
func (b *Bundle) Stop() {
	b.pumps.stop()
}

// pumpGroup runs the shared pump topology: one intake goroutine routing
// events to per-key shards, one delivery goroutine per shard.
type pumpGroup struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func (p *pumpGroup) start(ctx context.Context, src eventsource.Source, sup Supervisor, shards int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return errors.New("quest: pumps already started")
	}

	if shards <= 0 {
		shards = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	chans := make([]chan Event, shards)
	for i := range chans {
		chans[i] = make(chan Event, 64)
	}

	// Intake routes each received event to its key's shard so per-key
	// delivery order is preserved.
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			for _, ch := range chans {
				close(ch)
			}
		}()

		for {
			ev, err := src.Receive(ctx)
			if err != nil {
				return
			}
			select {
			case chans[shardFor(ev.CorrelationKey, shards)] <- *ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	p.wg.Add(shards)
	for i := 0; i < shards; i++ {
		ch := chans[i]
		go func() {
			defer p.wg.Done()

			for ev := range ch {
				if _, err := sup.Deliver(ctx, ev); err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// Keep pumping so a single bad event doesn't kill the
					// shard.
					log.Printf("quest: pump error: %v", err)
				}
			}
		}()
	}

	return nil
}

func (p *pumpGroup) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func shardFor(correlationKey string, shards int) int {
	h := fnv.New32a()
	h.Write([]byte(correlationKey))
	return int(h.Sum32() % uint32(shards))
}
