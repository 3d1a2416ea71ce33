package records

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory [Store] for tests and ephemeral runs.
type MemStore struct {
	mu   sync.RWMutex
	recs []Record // insertion order
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Add implements [Store.Add].
func (s *MemStore) Add(ctx context.Context, r Record) (Record, error) {
	if r.ID == "" {
		id, err := generateID()
		if err != nil {
			return Record{}, fmt.Errorf("records: generate id: %w", err)
		}
		r.ID = id
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, r)
	return r, nil
}

// List implements [Store.List].
func (s *MemStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := len(s.recs) - 1; i >= 0; i-- {
		if filter.Matches(s.recs[i]) {
			out = append(out, s.recs[i])
		}
	}
	return out, nil
}

// Update implements [Store.Update].
func (s *MemStore) Update(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.recs {
		if s.recs[i].ID == r.ID {
			s.recs[i] = r
			return nil
		}
	}
	return ErrNotFound
}

// Delete implements [Store.Delete].
func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.recs {
		if s.recs[i].ID == id {
			s.recs = append(s.recs[:i], s.recs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Search implements [Store.Search].
func (s *MemStore) Search(ctx context.Context, query string) ([]Record, error) {
	term := strings.ToLower(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for i := len(s.recs) - 1; i >= 0; i-- {
		if matchesQuery(s.recs[i], term) {
			out = append(out, s.recs[i])
		}
	}
	return out, nil
}

// Statistics implements [Store.Statistics].
func (s *MemStore) Statistics(ctx context.Context) (Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return summarise(s.recs, time.Now().UTC()), nil
}
