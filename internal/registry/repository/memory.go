package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/agentdir/agentdir/internal/registry/model"
)

// MemoryStore is an in-memory, thread-safe Store implementation.
// Every critical section is a single map operation, so each record is
// independently linearizable; readers copy entries out under the read
// lock and never hold it while filtering.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
}

type memEntry struct {
	record   model.AgentRecord
	liveness model.LivenessState
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memEntry)}
}

// Create implements Store. The existence check and the insert happen under
// one write lock, so a concurrent duplicate registration cannot slip between
// them.
func (s *MemoryStore) Create(_ context.Context, rec *model.AgentRecord, state model.LivenessState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[rec.ID]; ok {
		return ErrConflict
	}
	s.entries[rec.ID] = &memEntry{record: *rec, liveness: state}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*model.AgentRecord, model.LivenessState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, model.LivenessState{}, ErrNotFound
	}
	rec := e.record
	return &rec, e.liveness, nil
}

// List implements Store. Entries are copied out and sorted by creation
// time then id, so repeated identical queries see the same order.
func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		rec := e.record
		out = append(out, Entry{Record: &rec, Liveness: e.liveness})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Record.CreatedAt.Equal(out[j].Record.CreatedAt) {
			return out[i].Record.CreatedAt.Before(out[j].Record.CreatedAt)
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	return out, nil
}

// UpdateLiveness implements Store. The whole state is replaced in one
// assignment under the write lock; racing heartbeats serialize and the
// final state is exactly one caller's payload.
func (s *MemoryStore) UpdateLiveness(_ context.Context, id string, state model.LivenessState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.liveness = state
	return nil
}
