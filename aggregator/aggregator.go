package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"goa.design/a2a-runtime/queue"
	"goa.design/a2a-runtime/taskmanager"
	"goa.design/a2a-runtime/types"
)

// Aggregator folds a Consumer's event stream into an authoritative Task via
// a taskmanager.Manager, in the three modes the Request Handler needs.
type Aggregator struct {
	tm *taskmanager.Manager

	mu      sync.RWMutex
	current *types.Task
}

// New constructs an Aggregator that folds events via tm.
func New(tm *taskmanager.Manager) *Aggregator {
	return &Aggregator{tm: tm}
}

// GetCurrentResult returns the latest Task snapshot produced by the fold.
// Reads are weakly consistent relative to the live event stream but
// strongly consistent with whatever has already been written to the
// TaskStore.
func (a *Aggregator) GetCurrentResult() *types.Task {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current
}

func (a *Aggregator) setCurrent(t *types.Task) {
	if t == nil {
		return
	}
	a.mu.Lock()
	a.current = t
	a.mu.Unlock()
}

// fold applies e via the task manager and records the result as the current
// snapshot, unless e is a standalone Message (which is never persisted; it
// is returned to the caller directly instead, per S2).
func (a *Aggregator) fold(ctx context.Context, e types.Event) (types.Event, error) {
	if _, ok := e.(*types.Message); ok {
		return e, nil
	}
	task, err := a.tm.SaveTaskEvent(ctx, e)
	if err != nil {
		return nil, err
	}
	a.setCurrent(task)
	return task, nil
}

// ConsumeAll drains consumer to completion and returns the authoritative
// terminal event: the last Task snapshot folded, or a bare Message if the
// executor chose to reply with one instead of ever emitting a Task.
func (a *Aggregator) ConsumeAll(ctx context.Context, consumer *Consumer) (types.Event, error) {
	for {
		e, err := consumer.ConsumeOne(ctx)
		if err != nil {
			return a.terminalOrError(err)
		}
		folded, err := a.fold(ctx, e)
		if err != nil {
			return nil, err
		}
		if types.IsFinal(e) {
			if msg, ok := folded.(*types.Message); ok {
				return msg, nil
			}
			return a.GetCurrentResult(), nil
		}
	}
}

// ConsumeAndBreakOnInterrupt drains consumer until either a terminal event
// is observed (interrupted=false) or the task's status becomes input- or
// auth-required (interrupted=true, executor left running).
func (a *Aggregator) ConsumeAndBreakOnInterrupt(ctx context.Context, consumer *Consumer) (types.Event, bool, error) {
	for {
		e, err := consumer.ConsumeOne(ctx)
		if err != nil {
			ev, err := a.terminalOrError(err)
			return ev, false, err
		}
		folded, err := a.fold(ctx, e)
		if err != nil {
			return nil, false, err
		}
		if msg, ok := folded.(*types.Message); ok {
			return msg, false, nil
		}
		if task, ok := folded.(*types.Task); ok && task.Status.State.Interrupt() {
			return task, true, nil
		}
		if types.IsFinal(e) {
			return a.GetCurrentResult(), false, nil
		}
	}
}

// Publisher is the back-pressured stream handed to streaming callers: each
// Events() receive is one observed event, in arrival order. The channel is
// closed once the consumer reaches a terminal event, the queue closes, or
// Err() becomes non-nil.
type Publisher struct {
	events chan types.Event
	mu     sync.Mutex
	err    error
}

// Events returns the channel of published events.
func (p *Publisher) Events() <-chan types.Event { return p.events }

// Err returns the terminal error, if the stream ended abnormally.
func (p *Publisher) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Publisher) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// ConsumeAndEmit republishes every observed event on a Publisher while
// folding it into the Task in parallel, so GetCurrentResult is queryable at
// any time without blocking the stream. The publisher channel is
// demand-bounded: a slow subscriber blocks the internal fold loop, which in
// turn blocks further DequeueEvent polls. The producer is not slowed by
// this: the queue's buffer is unbounded and keeps accepting events.
func (a *Aggregator) ConsumeAndEmit(ctx context.Context, consumer *Consumer) *Publisher {
	pub := &Publisher{events: make(chan types.Event)}

	go func() {
		defer close(pub.events)
		for {
			e, err := consumer.ConsumeOne(ctx)
			if err != nil {
				if !isBenignClose(err) {
					pub.setErr(err)
				}
				return
			}
			if _, err := a.fold(ctx, e); err != nil {
				pub.setErr(err)
				return
			}
			select {
			case pub.events <- e:
			case <-ctx.Done():
				pub.setErr(ctx.Err())
				return
			}
			if types.IsFinal(e) {
				return
			}
		}
	}()

	return pub
}

func (a *Aggregator) terminalOrError(err error) (types.Event, error) {
	if isBenignClose(err) {
		if cur := a.GetCurrentResult(); cur != nil {
			return cur, nil
		}
		return nil, fmt.Errorf("aggregator: queue closed with no task produced: %w", err)
	}
	return nil, err
}

func isBenignClose(err error) bool {
	return errors.Is(err, queue.ErrQueueClosed)
}
