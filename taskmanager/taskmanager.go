// Package taskmanager implements the TaskManager component (spec §4.4): it
// applies incoming messages and executor events to a Task, routing by event
// kind, and enforces that every store write preserves (taskId, contextId).
package taskmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goa.design/a2a-runtime/taskstore"
	"goa.design/a2a-runtime/types"
)

// Manager holds the identity of an in-flight operation and a reference to
// the authoritative Store. It is constructed fresh per request and is
// written to by a single goroutine (the fold loop); idMu guards TaskID so a
// second, read-only observer goroutine (the Request Handler's early rekey
// watcher) can poll ResolvedTaskID without racing that writer.
type Manager struct {
	TaskID    string
	ContextID string
	store     taskstore.Store

	idMu sync.Mutex
}

// ResolvedTaskID returns the task id established so far, safe to call from
// a goroutine other than the one driving SaveTaskEvent.
func (m *Manager) ResolvedTaskID() string {
	m.idMu.Lock()
	defer m.idMu.Unlock()
	return m.TaskID
}

func (m *Manager) setTaskID(id string) {
	m.idMu.Lock()
	m.TaskID = id
	m.idMu.Unlock()
}

// New constructs a Manager for an operation identified by (taskID,
// contextID), either of which may be empty when not yet known (e.g. a
// message/send that has not yet been assigned a task id by the executor).
func New(store taskstore.Store, taskID, contextID string) *Manager {
	return &Manager{TaskID: taskID, ContextID: contextID, store: store}
}

// GetTask returns the current snapshot for m.TaskID, or nil if m.TaskID is
// empty or unknown to the store.
func (m *Manager) GetTask(ctx context.Context) (*types.Task, error) {
	if m.TaskID == "" {
		return nil, nil
	}
	t, ok, err := m.store.Get(ctx, m.TaskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return t, nil
}

// SaveTaskEvent applies e to the store, routing by its concrete kind, and
// returns the resulting Task snapshot. Message events are not saved
// directly: they only affect the store via history merges performed by
// status updates (the producer's own Message replies are returned to the
// caller without ever touching the store, per S2).
func (m *Manager) SaveTaskEvent(ctx context.Context, e types.Event) (*types.Task, error) {
	switch ev := e.(type) {
	case *types.Task:
		return m.saveTask(ctx, ev)
	case *types.TaskStatusUpdateEvent:
		return m.saveStatusUpdate(ctx, ev)
	case *types.TaskArtifactUpdateEvent:
		return m.saveArtifactUpdate(ctx, ev)
	case *types.Message:
		return m.GetTask(ctx)
	default:
		return nil, fmt.Errorf("taskmanager: unsupported event type %T", e)
	}
}

func (m *Manager) saveTask(ctx context.Context, in *types.Task) (*types.Task, error) {
	if m.TaskID == "" {
		m.setTaskID(in.ID)
	} else if in.ID != "" && in.ID != m.TaskID {
		return nil, fmt.Errorf("taskmanager: task id mismatch: expected %q, got %q", m.TaskID, in.ID)
	}
	if m.ContextID == "" {
		m.ContextID = in.ContextID
	} else if in.ContextID != "" && in.ContextID != m.ContextID {
		return nil, fmt.Errorf("taskmanager: context id mismatch: expected %q, got %q", m.ContextID, in.ContextID)
	}
	cp := *in
	cp.ID = m.TaskID
	cp.ContextID = m.ContextID
	if err := m.store.Put(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (m *Manager) saveStatusUpdate(ctx context.Context, ev *types.TaskStatusUpdateEvent) (*types.Task, error) {
	if err := m.checkIdentity(ev.TaskID, ev.ContextID); err != nil {
		return nil, err
	}
	task, err := m.GetTask(ctx)
	if err != nil {
		return nil, err
	}
	if task == nil {
		task = &types.Task{ID: m.TaskID, ContextID: m.ContextID}
	}
	if task.Status.State.Terminal() && !ev.Status.State.Terminal() {
		return nil, fmt.Errorf("taskmanager: illegal transition out of terminal state %q to %q", task.Status.State, ev.Status.State)
	}
	now := time.Now().UTC()
	newStatus := ev.Status
	if newStatus.Timestamp == nil {
		newStatus.Timestamp = &now
	}
	task.Status = newStatus
	if newStatus.Message != nil {
		task.History = append(task.History, newStatus.Message)
	}
	if err := m.store.Put(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (m *Manager) saveArtifactUpdate(ctx context.Context, ev *types.TaskArtifactUpdateEvent) (*types.Task, error) {
	if err := m.checkIdentity(ev.TaskID, ev.ContextID); err != nil {
		return nil, err
	}
	if ev.Artifact == nil {
		return nil, fmt.Errorf("taskmanager: artifact update event missing artifact")
	}
	task, err := m.GetTask(ctx)
	if err != nil {
		return nil, err
	}
	if task == nil {
		task = &types.Task{ID: m.TaskID, ContextID: m.ContextID}
	}

	found := false
	for i, a := range task.Artifacts {
		if a.ArtifactID != ev.Artifact.ArtifactID {
			continue
		}
		found = true
		if ev.Append {
			merged := *a
			merged.Parts = append(append([]types.Part(nil), a.Parts...), ev.Artifact.Parts...)
			task.Artifacts[i] = &merged
		} else {
			task.Artifacts[i] = ev.Artifact
		}
		break
	}
	if !found {
		task.Artifacts = append(task.Artifacts, ev.Artifact)
	}
	if err := m.store.Put(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateWithMessage appends message to task's history and returns the new
// task value. It does not write to the store; the caller decides whether
// and when to persist the result.
func (m *Manager) UpdateWithMessage(message *types.Message, task *types.Task) *types.Task {
	if task == nil {
		return nil
	}
	cp := *task
	cp.History = append(append([]*types.Message(nil), task.History...), message)
	return &cp
}

func (m *Manager) checkIdentity(taskID, contextID string) error {
	if m.TaskID == "" {
		m.setTaskID(taskID)
	} else if taskID != "" && taskID != m.TaskID {
		return fmt.Errorf("taskmanager: task id mismatch: expected %q, got %q", m.TaskID, taskID)
	}
	if m.ContextID == "" {
		m.ContextID = contextID
	} else if contextID != "" && contextID != m.ContextID {
		return fmt.Errorf("taskmanager: context id mismatch: expected %q, got %q", m.ContextID, contextID)
	}
	return nil
}

// TruncateHistory returns a copy of task with History truncated to the last
// n entries (inclusive), preserving order and never mutating task. n <= 0
// yields an empty history.
func TruncateHistory(task *types.Task, n int) *types.Task {
	if task == nil {
		return nil
	}
	cp := *task
	if n <= 0 {
		cp.History = []*types.Message{}
		return &cp
	}
	if len(task.History) <= n {
		cp.History = append([]*types.Message(nil), task.History...)
		return &cp
	}
	cp.History = append([]*types.Message(nil), task.History[len(task.History)-n:]...)
	return &cp
}
