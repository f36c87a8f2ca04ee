package store

import (
	"context"
	"sync"

	"github.com/dnjord/glasir-login/internal/session"
)

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps session records in memory. Used by tests and by
// one-shot invocations that must not touch disk.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*session.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*session.Record)}
}

func (s *MemoryStore) Get(ctx context.Context, profile string) (*session.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[profile]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, profile string, rec *session.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[profile] = rec.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[profile]; !ok {
		return ErrNotFound
	}
	delete(s.records, profile)
	return nil
}

func (s *MemoryStore) Profiles(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := make([]string, 0, len(s.records))
	for name := range s.records {
		profiles = append(profiles, name)
	}
	return profiles, nil
}

func (s *MemoryStore) Close() error { return nil }
