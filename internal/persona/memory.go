package persona

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is a simple in-process agent store for local/dev use.
type InMemoryStore struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{agents: make(map[string]Agent)}
}

func (s *InMemoryStore) Create(_ context.Context, a Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return Agent{}, ErrNotFound
	}
	return a, nil
}

func (s *InMemoryStore) List(_ context.Context, includeArchived bool) ([]Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		if a.Archived && !includeArchived {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) Archive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return ErrNotFound
	}
	a.Archived = true
	s.agents[id] = a
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
