package taskmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/a2a-runtime/taskstore"
	"goa.design/a2a-runtime/types"
)

func TestSaveTaskAdoptsUnsetID(t *testing.T) {
	store := taskstore.NewInMemory()
	m := New(store, "", "")

	task, err := m.SaveTaskEvent(context.Background(), &types.Task{ID: "T1", ContextID: "c1", Status: types.TaskStatus{State: types.TaskStateSubmitted}})
	require.NoError(t, err)
	require.Equal(t, "T1", task.ID)
	require.Equal(t, "T1", m.TaskID)
}

func TestSaveTaskRejectsIDMismatch(t *testing.T) {
	store := taskstore.NewInMemory()
	m := New(store, "T1", "c1")
	_, err := m.SaveTaskEvent(context.Background(), &types.Task{ID: "T2", ContextID: "c1"})
	require.Error(t, err)
}

func TestStatusUpdateAppendsMessageToHistory(t *testing.T) {
	store := taskstore.NewInMemory()
	m := New(store, "T1", "c1")
	_, err := m.SaveTaskEvent(context.Background(), &types.Task{ID: "T1", ContextID: "c1", Status: types.TaskStatus{State: types.TaskStateSubmitted}})
	require.NoError(t, err)

	reply := &types.Message{MessageID: "m1", Role: types.RoleAgent, Parts: []types.Part{types.NewTextPart("hi")}}
	task, err := m.SaveTaskEvent(context.Background(), &types.TaskStatusUpdateEvent{
		TaskID: "T1", ContextID: "c1",
		Status: types.TaskStatus{State: types.TaskStateWorking, Message: reply},
	})
	require.NoError(t, err)
	require.Len(t, task.History, 1)
	require.Equal(t, "m1", task.History[0].MessageID)
}

func TestTerminalTransitionIsRejected(t *testing.T) {
	store := taskstore.NewInMemory()
	m := New(store, "T1", "c1")
	_, err := m.SaveTaskEvent(context.Background(), &types.TaskStatusUpdateEvent{
		TaskID: "T1", ContextID: "c1", Status: types.TaskStatus{State: types.TaskStateCompleted}, Final: true,
	})
	require.NoError(t, err)

	_, err = m.SaveTaskEvent(context.Background(), &types.TaskStatusUpdateEvent{
		TaskID: "T1", ContextID: "c1", Status: types.TaskStatus{State: types.TaskStateWorking},
	})
	require.Error(t, err)
}

func TestArtifactUpdateAppendVsReplace(t *testing.T) {
	store := taskstore.NewInMemory()
	m := New(store, "T1", "c1")

	art := &types.Artifact{ArtifactID: "a1", Name: "joke", Parts: []types.Part{types.NewTextPart("partial")}}
	task, err := m.SaveTaskEvent(context.Background(), &types.TaskArtifactUpdateEvent{TaskID: "T1", ContextID: "c1", Artifact: art})
	require.NoError(t, err)
	require.Len(t, task.Artifacts, 1)
	require.Len(t, task.Artifacts[0].Parts, 1)

	appendArt := &types.Artifact{ArtifactID: "a1", Parts: []types.Part{types.NewTextPart(" more")}}
	task, err = m.SaveTaskEvent(context.Background(), &types.TaskArtifactUpdateEvent{TaskID: "T1", ContextID: "c1", Artifact: appendArt, Append: true, LastChunk: true})
	require.NoError(t, err)
	require.Len(t, task.Artifacts, 1)
	require.Len(t, task.Artifacts[0].Parts, 2)
	require.Equal(t, "partial", task.Artifacts[0].Parts[0].Text)
	require.Equal(t, " more", task.Artifacts[0].Parts[1].Text)

	replaceArt := &types.Artifact{ArtifactID: "a1", Parts: []types.Part{types.NewTextPart("replaced")}}
	task, err = m.SaveTaskEvent(context.Background(), &types.TaskArtifactUpdateEvent{TaskID: "T1", ContextID: "c1", Artifact: replaceArt})
	require.NoError(t, err)
	require.Len(t, task.Artifacts[0].Parts, 1)
	require.Equal(t, "replaced", task.Artifacts[0].Parts[0].Text)
}

func TestTruncateHistoryPreservesOrderAndSource(t *testing.T) {
	task := &types.Task{History: []*types.Message{
		{MessageID: "m1"}, {MessageID: "m2"}, {MessageID: "m3"},
	}}
	truncated := TruncateHistory(task, 2)
	require.Len(t, truncated.History, 2)
	require.Equal(t, "m2", truncated.History[0].MessageID)
	require.Equal(t, "m3", truncated.History[1].MessageID)
	require.Len(t, task.History, 3)

	empty := TruncateHistory(task, 0)
	require.Empty(t, empty.History)
}
