package fieldreg

import (
	"context"
	"sync"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory [Store]. It is suitable for tests and
// for running without persistence.
type MemStore struct {
	mu     sync.RWMutex
	fields []KnownField
	index  map[string]int
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		index: make(map[string]int),
	}
}

// Upsert implements [Store.Upsert]. Updates keep the entry's original
// position; new names append.
func (s *MemStore) Upsert(ctx context.Context, field KnownField) error {
	if err := field.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		s.index = make(map[string]int)
	}

	if i, ok := s.index[field.Name]; ok {
		s.fields[i] = field
		return nil
	}
	s.index[field.Name] = len(s.fields)
	s.fields = append(s.fields, field)
	return nil
}

// All implements [Store.All].
func (s *MemStore) All(ctx context.Context) ([]KnownField, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]KnownField, len(s.fields))
	copy(out, s.fields)
	return out, nil
}
