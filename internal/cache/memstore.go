package cache

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store implementation.
type MemStore struct {
	mu       sync.RWMutex
	entities map[string]*Entity
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory entity store.
func NewMemStore() *MemStore {
	return &MemStore{entities: make(map[string]*Entity)}
}

func memKey(entityType EntityType, key string) string {
	return string(entityType) + "\x00" + key
}

// GetEntity retrieves a record by type and natural key, or (nil, nil).
func (m *MemStore) GetEntity(_ context.Context, entityType EntityType, key string) (*Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entity, ok := m.entities[memKey(entityType, key)]
	if !ok {
		return nil, nil
	}
	return entity.Clone(), nil
}

// UpsertEntity patches or inserts the record for (type, key).
func (m *MemStore) UpsertEntity(_ context.Context, entity *Entity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[memKey(entity.Type, entity.NaturalKey)] = entity.Clone()
	return nil
}
