package vectorstore

import (
	"context"
	"fmt"
	"sync"
)

// CollectionManager ensures Qdrant collections exist, creating each one at
// most once per process unless it is forgotten.
type CollectionManager struct {
	client *QdrantClient
	known  map[string]bool
	mu     sync.RWMutex
}

func NewCollectionManager(client *QdrantClient) *CollectionManager {
	return &CollectionManager{
		client: client,
		known:  make(map[string]bool),
	}
}

// Ensure creates the collection if it doesn't already exist. Results are
// cached in-memory.
func (m *CollectionManager) Ensure(ctx context.Context, name string) error {
	m.mu.RLock()
	if m.known[name] {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if m.known[name] {
		return nil
	}

	if err := m.client.EnsureCollection(ctx, name); err != nil {
		return fmt.Errorf("ensure collection %s: %w", name, err)
	}
	m.known[name] = true
	return nil
}

// Recreate drops and recreates the collection.
func (m *CollectionManager) Recreate(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.known, name)
	exists, err := m.client.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if err := m.client.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("drop collection %s: %w", name, err)
		}
	}
	if err := m.client.EnsureCollection(ctx, name); err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	m.known[name] = true
	return nil
}
