package taskstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"goa.design/a2a-runtime/types"
)

// PushConfigStore is the per-task CRUD seam for PushNotificationConfig,
// backing the tasks/pushNotificationConfig/* methods.
type PushConfigStore interface {
	Set(ctx context.Context, taskID string, cfg types.PushNotificationConfig) (types.PushNotificationConfig, error)
	Get(ctx context.Context, taskID, configID string) (types.PushNotificationConfig, bool, error)
	List(ctx context.Context, taskID string) ([]types.PushNotificationConfig, error)
	Delete(ctx context.Context, taskID, configID string) error
}

// InMemoryPushConfigStore is the default PushConfigStore.
type InMemoryPushConfigStore struct {
	mu      sync.RWMutex
	configs map[string][]types.PushNotificationConfig
}

// NewInMemoryPushConfigStore constructs an empty InMemoryPushConfigStore.
func NewInMemoryPushConfigStore() *InMemoryPushConfigStore {
	return &InMemoryPushConfigStore{configs: make(map[string][]types.PushNotificationConfig)}
}

// Set implements PushConfigStore. If cfg.ID is empty, one is generated;
// if it matches an existing config for the task, that entry is replaced.
func (s *InMemoryPushConfigStore) Set(_ context.Context, taskID string, cfg types.PushNotificationConfig) (types.PushNotificationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	list := s.configs[taskID]
	for i, c := range list {
		if c.ID == cfg.ID {
			list[i] = cfg
			s.configs[taskID] = list
			return cfg, nil
		}
	}
	s.configs[taskID] = append(list, cfg)
	return cfg, nil
}

// Get implements PushConfigStore. An empty configID returns the first
// registered config for the task, if any.
func (s *InMemoryPushConfigStore) Get(_ context.Context, taskID, configID string) (types.PushNotificationConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.configs[taskID]
	if len(list) == 0 {
		return types.PushNotificationConfig{}, false, nil
	}
	if configID == "" {
		return list[0], true, nil
	}
	for _, c := range list {
		if c.ID == configID {
			return c, true, nil
		}
	}
	return types.PushNotificationConfig{}, false, nil
}

// List implements PushConfigStore.
func (s *InMemoryPushConfigStore) List(_ context.Context, taskID string) ([]types.PushNotificationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.PushNotificationConfig(nil), s.configs[taskID]...), nil
}

// Delete implements PushConfigStore.
func (s *InMemoryPushConfigStore) Delete(_ context.Context, taskID, configID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.configs[taskID]
	for i, c := range list {
		if c.ID == configID {
			s.configs[taskID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

var _ PushConfigStore = (*InMemoryPushConfigStore)(nil)
