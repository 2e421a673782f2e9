package score

import (
	"context"
	"sync"

	"github.com/victornm/quizroom/internal/domain"
)

// MemoryStore keeps scores in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string]map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]map[string]int64),
	}
}

func (s *MemoryStore) RecordAnswer(_ context.Context, roomID, username string, correct bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[roomID]
	if !ok {
		t = make(map[string]int64)
		s.tables[roomID] = t
	}

	if correct {
		t[username]++
	} else if _, ok := t[username]; !ok {
		t[username] = 0
	}

	return t[username], nil
}

func (s *MemoryStore) Leaderboard(_ context.Context, roomID string, n int) ([]domain.ScoreEntry, error) {
	s.mu.Lock()
	t := s.tables[roomID]
	entries := make([]domain.ScoreEntry, 0, len(t))
	for u, sc := range t {
		entries = append(entries, domain.ScoreEntry{Username: u, Score: sc})
	}
	s.mu.Unlock()

	return rank(entries, n), nil
}

func (s *MemoryStore) Clear(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tables, roomID)
	return nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables = make(map[string]map[string]int64)
	return nil
}

// Rooms returns the number of rooms holding a score table.
func (s *MemoryStore) Rooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.tables)
}
