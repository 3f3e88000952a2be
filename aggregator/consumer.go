// Package aggregator implements the EventConsumer and ResultAggregator
// (spec §4.5): a lazy wrapper over an EventQueue that yields one event at a
// time, and a fold that applies every observed event to a Task via a
// taskmanager.Manager, exposed in the three consumption modes the Request
// Handler needs.
package aggregator

import (
	"context"
	"time"

	"goa.design/a2a-runtime/queue"
	"goa.design/a2a-runtime/types"
)

// pollInterval is the modest per-poll timeout used while draining a queue;
// consumeOne repeats across polls until a terminal condition is reached.
const pollInterval = 200 * time.Millisecond

// Consumer is a lazy sequence wrapper over an EventQueue. ProducerDone, if
// set, is consulted so that a producer failure is surfaced even when no
// event was ever enqueued.
type Consumer struct {
	q            *queue.EventQueue
	producerDone <-chan error
}

// NewConsumer constructs a Consumer over q. producerDone, if non-nil, is
// closed (or sent to) by the producer when it terminates; a non-nil error
// received over it is surfaced as the consumer's terminal error even if the
// queue itself closed without an error.
func NewConsumer(q *queue.EventQueue, producerDone <-chan error) *Consumer {
	return &Consumer{q: q, producerDone: producerDone}
}

// ConsumeOne blocks until the next event is available, the queue closes, or
// the producer reports an error. Buffered events are returned before a
// producer error is surfaced. When the context is canceled it returns
// (nil, ctx.Err()).
func (c *Consumer) ConsumeOne(ctx context.Context) (types.Event, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		e, err := c.q.DequeueEvent(ctx, pollInterval)
		if err != nil {
			return nil, err
		}
		if e != nil {
			return e, nil
		}

		// Empty-within-timeout: check producerDone, then loop again.
		if c.producerDone != nil {
			select {
			case err, ok := <-c.producerDone:
				if ok && err != nil {
					return nil, err
				}
				c.producerDone = nil
			default:
			}
		}
	}
}
