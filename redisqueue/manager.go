// Package redisqueue durably buffers the in-memory event fabric (package
// queue) into goa.design/pulse streams over go-redis. Per §1 a single
// process instance remains authoritative for an in-flight task's live
// queue; Pulse here is a durable buffer for crash recovery and
// audit/replay, never a cross-node coordination mechanism.
package redisqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"goa.design/a2a-runtime/queue"
	"goa.design/a2a-runtime/telemetry"
	"goa.design/a2a-runtime/types"
)

// Option configures a Manager.
type Option func(*Manager)

// WithStreamMaxLen bounds the number of entries kept per task's Pulse
// stream. Zero uses Pulse defaults.
func WithStreamMaxLen(n int) Option {
	return func(m *Manager) { m.maxLen = n }
}

// WithStreamPrefix overrides the default "a2a/task/" Pulse stream name
// prefix.
func WithStreamPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

// WithLogger installs a logger for best-effort persistence failures, which
// never fail the in-memory queue operation they shadow.
func WithLogger(l telemetry.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// Manager wraps a queue.Manager, mirroring every event enqueued on a task's
// main queue into a durable Pulse stream. The wrapped queue.Manager remains
// the live fabric the Request Handler is configured with (via Queues); this
// type only adds the durable side channel and replay. Mirroring starts only
// for task ids passed to this Manager's CreateOrTap: queues created directly
// on the wrapped queue.Manager, as the Request Handler does, are not
// persisted.
type Manager struct {
	queues *queue.Manager
	redis  *redis.Client
	prefix string
	maxLen int
	logger telemetry.Logger

	mu         sync.Mutex
	persisting map[string]bool
}

// NewManager constructs a Manager backed by redisClient.
func NewManager(redisClient *redis.Client, opts ...Option) *Manager {
	m := &Manager{
		queues:     queue.NewManager(),
		redis:      redisClient,
		prefix:     "a2a/task/",
		logger:     telemetry.Noop{},
		persisting: make(map[string]bool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Queues returns the wrapped in-memory queue.Manager, for use with
// a2a.WithQueueManager.
func (m *Manager) Queues() *queue.Manager { return m.queues }

func (m *Manager) streamName(taskID string) string { return m.prefix + taskID }

// CreateOrTap behaves like queue.Manager.CreateOrTap and additionally
// starts (once, per task id) a background persister mirroring the main
// queue's events into the durable stream.
func (m *Manager) CreateOrTap(taskID string) *queue.EventQueue {
	q := m.queues.CreateOrTap(taskID)
	m.ensurePersister(taskID)
	return q
}

// Tap behaves like queue.Manager.Tap.
func (m *Manager) Tap(taskID string) *queue.EventQueue {
	return m.queues.Tap(taskID)
}

// Rekey behaves like queue.Manager.Rekey, additionally moving the
// persistence bookkeeping to the resolved id so a later CreateOrTap under
// that id starts no second persister. The Pulse stream is not renamed, and
// the running persister keeps publishing under the id it was started with,
// so the task's events stay replayable under the original id.
func (m *Manager) Rekey(oldID, newID string) bool {
	ok := m.queues.Rekey(oldID, newID)
	if !ok {
		return false
	}
	m.mu.Lock()
	if m.persisting[oldID] {
		delete(m.persisting, oldID)
		m.persisting[newID] = true
	}
	m.mu.Unlock()
	return true
}

// Close behaves like queue.Manager.Close.
func (m *Manager) Close(taskID string) {
	m.queues.Close(taskID)
}

func (m *Manager) ensurePersister(taskID string) {
	m.mu.Lock()
	if m.persisting[taskID] {
		m.mu.Unlock()
		return
	}
	m.persisting[taskID] = true
	m.mu.Unlock()

	tap := m.queues.Tap(taskID)
	if tap == nil {
		return
	}
	go m.drain(taskID, tap)
}

func (m *Manager) drain(taskID string, tap *queue.EventQueue) {
	ctx := context.Background()
	for {
		ev, err := tap.DequeueEvent(ctx, time.Second)
		if err != nil {
			return
		}
		if ev == nil {
			continue
		}
		if err := m.Publish(ctx, taskID, ev); err != nil {
			m.logger.Warn(ctx, "redisqueue: persist failed", "task", taskID, "error", err)
		}
		if types.IsFinal(ev) {
			return
		}
	}
}

// Publish appends ev to the durable stream for taskID.
func (m *Manager) Publish(ctx context.Context, taskID string, ev types.Event) error {
	payload, err := types.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("redisqueue: encode event: %w", err)
	}
	var opts []streamopts.Stream
	if m.maxLen > 0 {
		opts = append(opts, streamopts.WithStreamMaxLen(m.maxLen))
	}
	stream, err := streaming.NewStream(m.streamName(taskID), m.redis, opts...)
	if err != nil {
		return fmt.Errorf("redisqueue: open stream %q: %w", m.streamName(taskID), err)
	}
	if _, err := stream.Add(ctx, ev.EventKind(), payload); err != nil {
		return fmt.Errorf("redisqueue: append to %q: %w", m.streamName(taskID), err)
	}
	return nil
}

// Replay opens a consumer group named sinkName on taskID's durable stream
// and returns the events it has not yet acknowledged, used to reconstruct
// in-flight task state after a process restart, before a client's next
// tasks/resubscribe repopulates the live queue.Manager.
func (m *Manager) Replay(ctx context.Context, taskID, sinkName string, wait time.Duration) ([]types.Event, error) {
	stream, err := streaming.NewStream(m.streamName(taskID), m.redis)
	if err != nil {
		return nil, fmt.Errorf("redisqueue: open stream %q: %w", m.streamName(taskID), err)
	}
	sink, err := stream.NewSink(ctx, sinkName)
	if err != nil {
		return nil, fmt.Errorf("redisqueue: open sink %q: %w", sinkName, err)
	}
	defer sink.Close(ctx)

	var events []types.Event
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ch := sink.Subscribe()
	for {
		select {
		case entry, ok := <-ch:
			if !ok {
				return events, nil
			}
			ev, err := types.DecodeEvent(entry.Payload)
			if err != nil {
				return events, fmt.Errorf("redisqueue: decode replayed event: %w", err)
			}
			events = append(events, ev)
			if ackErr := sink.Ack(ctx, entry); ackErr != nil {
				return events, fmt.Errorf("redisqueue: ack replayed event: %w", ackErr)
			}
			if types.IsFinal(ev) {
				return events, nil
			}
		case <-deadline.C:
			return events, nil
		case <-ctx.Done():
			return events, ctx.Err()
		}
	}
}

// Destroy deletes taskID's durable stream entirely.
func (m *Manager) Destroy(ctx context.Context, taskID string) error {
	stream, err := streaming.NewStream(m.streamName(taskID), m.redis)
	if err != nil {
		return fmt.Errorf("redisqueue: open stream %q: %w", m.streamName(taskID), err)
	}
	return stream.Destroy(ctx)
}
