package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"goa.design/a2a-runtime/queue"
	"goa.design/a2a-runtime/taskmanager"
	"goa.design/a2a-runtime/taskstore"
	"goa.design/a2a-runtime/types"
)

func TestConsumeAllTaskReply(t *testing.T) {
	q := queue.New(16)
	store := taskstore.NewInMemory()
	tm := taskmanager.New(store, "", "")
	agg := New(tm)
	consumer := NewConsumer(q, nil)

	q.EnqueueEvent(&types.Task{ID: "T1", ContextID: "c1", Status: types.TaskStatus{State: types.TaskStateSubmitted}})
	q.EnqueueEvent(&types.TaskArtifactUpdateEvent{
		TaskID: "T1", ContextID: "c1",
		Artifact: &types.Artifact{ArtifactID: "a1", Name: "joke", Parts: []types.Part{types.NewTextPart("Why... other side!")}},
	})
	q.EnqueueEvent(&types.TaskStatusUpdateEvent{TaskID: "T1", ContextID: "c1", Status: types.TaskStatus{State: types.TaskStateCompleted}, Final: true})
	q.Close()

	result, err := agg.ConsumeAll(context.Background(), consumer)
	require.NoError(t, err)
	task, ok := result.(*types.Task)
	require.True(t, ok)
	require.Equal(t, "T1", task.ID)
	require.Equal(t, types.TaskStateCompleted, task.Status.State)
	require.Len(t, task.Artifacts, 1)
	require.Equal(t, "joke", task.Artifacts[0].Name)
}

func TestConsumeAllBareMessageReply(t *testing.T) {
	q := queue.New(16)
	tm := taskmanager.New(taskstore.NewInMemory(), "", "")
	agg := New(tm)
	consumer := NewConsumer(q, nil)

	q.EnqueueEvent(&types.Message{MessageID: "msg-456", Role: types.RoleAgent, Parts: []types.Part{types.NewTextPart("Why... other side!")}})
	q.Close()

	result, err := agg.ConsumeAll(context.Background(), consumer)
	require.NoError(t, err)
	msg, ok := result.(*types.Message)
	require.True(t, ok)
	require.Equal(t, "msg-456", msg.MessageID)
}

func TestConsumeAndBreakOnInterrupt(t *testing.T) {
	q := queue.New(16)
	tm := taskmanager.New(taskstore.NewInMemory(), "", "")
	agg := New(tm)
	consumer := NewConsumer(q, nil)

	q.EnqueueEvent(&types.Task{ID: "T1", ContextID: "c1", Status: types.TaskStatus{State: types.TaskStateSubmitted}})
	q.EnqueueEvent(&types.TaskStatusUpdateEvent{TaskID: "T1", ContextID: "c1", Status: types.TaskStatus{State: types.TaskStateInputRequired}})

	result, interrupted, err := agg.ConsumeAndBreakOnInterrupt(context.Background(), consumer)
	require.NoError(t, err)
	require.True(t, interrupted)
	task := result.(*types.Task)
	require.Equal(t, types.TaskStateInputRequired, task.Status.State)
}

func TestConsumeAndEmitStreamsAllEventsInOrder(t *testing.T) {
	q := queue.New(16)
	tm := taskmanager.New(taskstore.NewInMemory(), "", "")
	agg := New(tm)
	consumer := NewConsumer(q, nil)

	events := []types.Event{
		&types.Task{ID: "T1", ContextID: "c1", Status: types.TaskStatus{State: types.TaskStateSubmitted}},
		&types.TaskStatusUpdateEvent{TaskID: "T1", ContextID: "c1", Status: types.TaskStatus{State: types.TaskStateWorking}},
		&types.TaskArtifactUpdateEvent{TaskID: "T1", ContextID: "c1", Artifact: &types.Artifact{ArtifactID: "a1", Parts: []types.Part{types.NewTextPart("partial")}}},
		&types.TaskArtifactUpdateEvent{TaskID: "T1", ContextID: "c1", Artifact: &types.Artifact{ArtifactID: "a1", Parts: []types.Part{types.NewTextPart(" more")}}, Append: true, LastChunk: true},
		&types.TaskStatusUpdateEvent{TaskID: "T1", ContextID: "c1", Status: types.TaskStatus{State: types.TaskStateCompleted}, Final: true},
	}
	for _, e := range events {
		q.EnqueueEvent(e)
	}
	q.Close()

	pub := agg.ConsumeAndEmit(context.Background(), consumer)
	var got []types.Event
	for e := range pub.Events() {
		got = append(got, e)
	}
	require.NoError(t, pub.Err())
	require.Len(t, got, 5)

	final := agg.GetCurrentResult()
	require.Equal(t, types.TaskStateCompleted, final.Status.State)
	require.Len(t, final.Artifacts[0].Parts, 2)
}

func TestConsumeAllSurfacesProducerError(t *testing.T) {
	q := queue.New(16)
	tm := taskmanager.New(taskstore.NewInMemory(), "", "")
	agg := New(tm)

	producerDone := make(chan error, 1)
	producerDone <- context.DeadlineExceeded
	consumer := NewConsumer(q, producerDone)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := agg.ConsumeAll(ctx, consumer)
	require.Error(t, err)
}
