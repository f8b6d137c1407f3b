package configstore

import (
	"context"
	"sync"
)

var _ Service = (*MemoryStore)(nil)

// MemoryStore is an in-process Service for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]map[string]interface{}
	// Err, when set, is returned by every GetConfig call.
	Err error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nodes: make(map[string]map[string]interface{})}
}

// Put stores node at path, replacing any previous node.
func (s *MemoryStore) Put(path string, node map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[cleanPath(path)] = copyNode(node)
}

// Delete removes the node at path.
func (s *MemoryStore) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, cleanPath(path))
}

// GetConfig returns the node at path.
func (s *MemoryStore) GetConfig(_ context.Context, path string) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Err != nil {
		return nil, s.Err
	}
	path = cleanPath(path)
	node, ok := s.nodes[path]
	if !ok {
		return nil, notFound(path)
	}
	return copyNode(node), nil
}
