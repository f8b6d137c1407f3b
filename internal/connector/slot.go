package connector

import (
	"sort"
	"sync"
)

// Slot holds at most one Instance per (org, source). Set replaces the whole
// pointer under a write lock, so readers see either the old or the new
// instance and never a partial one.
type Slot struct {
	mu        sync.RWMutex
	instances map[Key]*Instance
}

// NewSlot creates an empty slot.
func NewSlot() *Slot {
	return &Slot{instances: make(map[Key]*Instance)}
}

// Get returns the current instance for (orgID, source).
func (s *Slot) Get(orgID string, source Source) (*Instance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.instances[Key{OrgID: orgID, Source: source}]
	return inst, ok
}

// Set registers inst under its key and returns the instance it superseded,
// if any. The superseded instance is not stopped.
func (s *Slot) Set(inst *Instance) *Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := inst.Key()
	previous := s.instances[key]
	s.instances[key] = inst
	return previous
}

// Len returns the number of registered instances.
func (s *Slot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}

// Keys returns the registered keys in a stable order.
func (s *Slot) Keys() []Key {
	s.mu.RLock()
	keys := make([]Key, 0, len(s.instances))
	for k := range s.instances {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].OrgID != keys[j].OrgID {
			return keys[i].OrgID < keys[j].OrgID
		}
		return keys[i].Source < keys[j].Source
	})
	return keys
}
