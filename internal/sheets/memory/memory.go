package memory

import (
	"context"
	"sort"
	"sync"

	"taxdesk/internal/core"
)

// Store keeps the latest exported copy of each summary in memory.
type Store struct {
	mu    sync.Mutex
	items map[core.Key]core.IncomeSummary
	count int
}

func New() *Store {
	return &Store{items: make(map[core.Key]core.IncomeSummary)}
}

func (s *Store) Name() string { return "memory" }

// Export replaces any earlier copy for the same key.
func (s *Store) Export(_ context.Context, sum core.IncomeSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sum.Key()] = sum
	s.count++
	return nil
}

func (s *Store) Get(key core.Key) (core.IncomeSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.items[key]
	return sum, ok
}

// List returns every stored summary ordered by tax year then user.
func (s *Store) List() []core.IncomeSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.IncomeSummary, 0, len(s.items))
	for _, v := range s.items {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TaxYear != out[j].TaxYear {
			return out[i].TaxYear < out[j].TaxYear
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Exports counts Export calls, including replacements.
func (s *Store) Exports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
