// Package taskstore provides the TaskStore interface and its in-memory
// implementation: a single authoritative copy of each Task, keyed by id,
// updated by value-replacement.
package taskstore

import (
	"context"
	"sync"

	"goa.design/a2a-runtime/types"
)

// Store is the persistence seam for Task state. Implementations MUST
// serialize writes per task id; cross-task operations MUST NOT contend.
// Persistence is an implementation choice: the in-memory Store below is the
// default, with goa.design/a2a-runtime/taskstore/mongotask offered as a
// durable alternative.
type Store interface {
	// Get returns the current snapshot for id, or (nil, false) if absent.
	Get(ctx context.Context, id string) (*types.Task, bool, error)
	// Put stores (or replaces) the snapshot for task.ID.
	Put(ctx context.Context, task *types.Task) error
	// Delete removes the snapshot for id, if present.
	Delete(ctx context.Context, id string) error
}

// InMemory is the default Store: a mutex-guarded map. Safe for concurrent
// use; a per-key lock is unnecessary at this scale since Put/Get/Delete only
// ever touch the map itself, never perform IO while holding the lock.
type InMemory struct {
	mu    sync.RWMutex
	tasks map[string]*types.Task
}

// NewInMemory constructs an empty InMemory store.
func NewInMemory() *InMemory {
	return &InMemory{tasks: make(map[string]*types.Task)}
}

// Get implements Store.
func (s *InMemory) Get(_ context.Context, id string) (*types.Task, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false, nil
	}
	return copyTask(t), true, nil
}

// Put implements Store.
func (s *InMemory) Put(_ context.Context, task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = copyTask(task)
	return nil
}

// Delete implements Store.
func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

// copyTask deep-copies t so that callers holding a returned snapshot cannot
// observe or cause a data race with later store mutations.
func copyTask(t *types.Task) *types.Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Artifacts != nil {
		cp.Artifacts = make([]*types.Artifact, len(t.Artifacts))
		for i, a := range t.Artifacts {
			cp.Artifacts[i] = copyArtifact(a)
		}
	}
	if t.History != nil {
		cp.History = make([]*types.Message, len(t.History))
		for i, m := range t.History {
			cp.History[i] = copyMessage(m)
		}
	}
	if t.Metadata != nil {
		cp.Metadata = copyMap(t.Metadata)
	}
	if t.Status.Message != nil {
		msg := copyMessage(t.Status.Message)
		cp.Status.Message = msg
	}
	return &cp
}

func copyArtifact(a *types.Artifact) *types.Artifact {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Parts = copyParts(a.Parts)
	if a.Metadata != nil {
		cp.Metadata = copyMap(a.Metadata)
	}
	return &cp
}

func copyMessage(m *types.Message) *types.Message {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Parts = copyParts(m.Parts)
	if m.Metadata != nil {
		cp.Metadata = copyMap(m.Metadata)
	}
	if m.ReferenceTaskIDs != nil {
		cp.ReferenceTaskIDs = append([]string(nil), m.ReferenceTaskIDs...)
	}
	return &cp
}

func copyParts(parts []types.Part) []types.Part {
	if parts == nil {
		return nil
	}
	cp := make([]types.Part, len(parts))
	for i, p := range parts {
		cpp := p
		if p.FileBytes != nil {
			cpp.FileBytes = append([]byte(nil), p.FileBytes...)
		}
		if p.Data != nil {
			cpp.Data = copyMap(p.Data)
		}
		if p.Metadata != nil {
			cpp.Metadata = copyMap(p.Metadata)
		}
		cp[i] = cpp
	}
	return cp
}

func copyMap(m map[string]any) map[string]any {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

var _ Store = (*InMemory)(nil)
