package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/a2a-runtime/types"
)

func drainAll(t *testing.T, q *EventQueue) []types.Event {
	t.Helper()
	var out []types.Event
	for {
		e, err := q.DequeueEvent(context.Background(), 20*time.Millisecond)
		if err != nil {
			return out
		}
		if e == nil {
			continue
		}
		out = append(out, e)
	}
}

func TestTapSeesOnlyFutureEventsInOrder(t *testing.T) {
	main := New(16)
	main.EnqueueEvent(&types.Message{MessageID: "before"})

	tap := main.Tap()

	main.EnqueueEvent(&types.Message{MessageID: "after-1"})
	main.EnqueueEvent(&types.Message{MessageID: "after-2"})
	main.Close()

	tapEvents := drainAll(t, tap)
	require.Len(t, tapEvents, 2)
	require.Equal(t, "after-1", tapEvents[0].(*types.Message).MessageID)
	require.Equal(t, "after-2", tapEvents[1].(*types.Message).MessageID)
}

func TestMultipleTapsObserveSamePrefix(t *testing.T) {
	main := New(16)
	tapA := main.Tap()
	tapB := main.Tap()

	for i := 0; i < 5; i++ {
		main.EnqueueEvent(&types.Message{MessageID: string(rune('a' + i))})
	}
	main.Close()

	a := drainAll(t, tapA)
	b := drainAll(t, tapB)
	require.Equal(t, len(a), len(b))
	for i := range a {
		require.Equal(t, a[i].(*types.Message).MessageID, b[i].(*types.Message).MessageID)
	}
}

func TestEnqueueAfterCloseIsDropped(t *testing.T) {
	q := New(4)
	q.Close()
	dropped := q.EnqueueEvent(&types.Message{MessageID: "m1"})
	require.True(t, dropped)
}

func TestDequeueAfterCloseDrainsThenFails(t *testing.T) {
	q := New(4)
	q.EnqueueEvent(&types.Message{MessageID: "buffered"})
	q.Close()

	e, err := q.DequeueEvent(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, e)

	_, err = q.DequeueEvent(context.Background(), 10*time.Millisecond)
	require.ErrorIs(t, err, ErrQueueClosed)
}

func TestCloseCascadesToChildren(t *testing.T) {
	main := New(4)
	child := main.Tap()
	main.Close()
	require.True(t, child.Closed())
}

func TestCloseIsIdempotent(t *testing.T) {
	q := New(4)
	q.Close()
	require.NotPanics(t, func() { q.Close() })
}

func TestDequeueReleasesPollerStartLatch(t *testing.T) {
	q := New(4)
	require.False(t, q.AwaitPollerStart(context.Background(), 10*time.Millisecond))

	go func() { _, _ = q.DequeueEvent(context.Background(), 50*time.Millisecond) }()
	require.True(t, q.AwaitPollerStart(context.Background(), time.Second))
}

func TestManagerCreateOrTap(t *testing.T) {
	m := NewManager()
	main := m.CreateOrTap("t1")
	require.NotNil(t, main)

	tap := m.CreateOrTap("t1")
	require.NotSame(t, main, tap)

	main.EnqueueEvent(&types.Message{MessageID: "m1"})
	events := drainAll(t, tap)
	require.Len(t, events, 1)
}

func TestManagerAddRejectsDuplicate(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Add("t1", New(4)))
	require.ErrorIs(t, m.Add("t1", New(4)), ErrQueueExists)
}

func TestManagerCloseIsIdempotent(t *testing.T) {
	m := NewManager()
	m.CreateOrTap("t1")
	m.Close("t1")
	require.NotPanics(t, func() { m.Close("t1") })
	require.Nil(t, m.Get("t1"))
}
