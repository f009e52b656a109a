package ranking

import (
	"context"
	"sync"

	"chainarena/internal/core"
)

// MemoryStore keeps participants in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[core.Kind]map[string]core.Participant
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[core.Kind]map[string]core.Participant)}
}

func (s *MemoryStore) Count(_ context.Context, kind core.Kind) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows[kind]), nil
}

func (s *MemoryStore) InsertMissing(_ context.Context, participants []core.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range participants {
		byName, ok := s.rows[p.Kind]
		if !ok {
			byName = make(map[string]core.Participant)
			s.rows[p.Kind] = byName
		}
		if _, exists := byName[p.Name]; !exists {
			byName[p.Name] = p
		}
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, kind core.Kind, name string) (*core.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[kind][name]
	if !ok {
		return nil, core.NewParticipantNotFoundError(kind, name)
	}
	return &p, nil
}

func (s *MemoryStore) List(_ context.Context, kind core.Kind) ([]core.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Participant, 0, len(s.rows[kind]))
	for _, p := range s.rows[kind] {
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryStore) UpdatePair(_ context.Context, kind core.Kind, left, right string, fn RatingFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName := s.rows[kind]
	l, ok := byName[left]
	if !ok {
		return core.NewParticipantNotFoundError(kind, left)
	}
	r, ok := byName[right]
	if !ok {
		return core.NewParticipantNotFoundError(kind, right)
	}

	l.Rating, r.Rating = fn(l.Rating, r.Rating)
	byName[left] = l
	byName[right] = r
	return nil
}
