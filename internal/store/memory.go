package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/atmx/clearing-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices and maps. Used for
// testing and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	journal []model.SettlementEntry
	ticks   map[int]model.TickSummary
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ticks: make(map[int]model.TickSummary),
	}
}

func (s *MemoryStore) RecordFill(_ context.Context, entry *model.SettlementEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.journal {
		if e.ID == entry.ID {
			return fmt.Errorf("fill %s already recorded", entry.ID)
		}
	}
	s.journal = append(s.journal, *entry)
	return nil
}

func (s *MemoryStore) FillsByTick(_ context.Context, tick int) ([]model.SettlementEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.SettlementEntry
	for _, e := range s.journal {
		if e.Tick == tick {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) FillsByAgent(_ context.Context, agentID string) ([]model.SettlementEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.SettlementEntry
	for _, e := range s.journal {
		if e.BuyerID == agentID || e.SellerID == agentID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) RecordTick(_ context.Context, summary *model.TickSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ticks[summary.Tick]; ok {
		return fmt.Errorf("tick %d already recorded", summary.Tick)
	}
	s.ticks[summary.Tick] = *summary
	return nil
}

func (s *MemoryStore) GetTick(_ context.Context, tick int) (*model.TickSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.ticks[tick]
	if !ok {
		return nil, fmt.Errorf("%w: tick %d", ErrNotFound, tick)
	}
	return &t, nil
}

func (s *MemoryStore) ListTicks(_ context.Context) ([]model.TickSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ticks := make([]model.TickSummary, 0, len(s.ticks))
	for _, t := range s.ticks {
		ticks = append(ticks, t)
	}
	sort.Slice(ticks, func(i, j int) bool { return ticks[i].Tick < ticks[j].Tick })
	return ticks, nil
}
