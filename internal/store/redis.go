package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/clearing-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     redis.Cmdable
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb redis.Cmdable, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) RecordFill(ctx context.Context, entry *model.SettlementEntry) error {
	if err := s.primary.RecordFill(ctx, entry); err != nil {
		return err
	}
	s.rdb.Del(ctx, tickFillsKey(entry.Tick), agentFillsKey(entry.BuyerID), agentFillsKey(entry.SellerID))
	return nil
}

func (s *CachedStore) RecordTick(ctx context.Context, summary *model.TickSummary) error {
	if err := s.primary.RecordTick(ctx, summary); err != nil {
		return err
	}
	s.cacheJSON(ctx, tickKey(summary.Tick), summary)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) FillsByTick(ctx context.Context, tick int) ([]model.SettlementEntry, error) {
	var entries []model.SettlementEntry
	if s.cached(ctx, tickFillsKey(tick), &entries) {
		return entries, nil
	}

	entries, err := s.primary.FillsByTick(ctx, tick)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, tickFillsKey(tick), entries)
	return entries, nil
}

func (s *CachedStore) FillsByAgent(ctx context.Context, agentID string) ([]model.SettlementEntry, error) {
	var entries []model.SettlementEntry
	if s.cached(ctx, agentFillsKey(agentID), &entries) {
		return entries, nil
	}

	entries, err := s.primary.FillsByAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, agentFillsKey(agentID), entries)
	return entries, nil
}

func (s *CachedStore) GetTick(ctx context.Context, tick int) (*model.TickSummary, error) {
	var t model.TickSummary
	if s.cached(ctx, tickKey(tick), &t) {
		return &t, nil
	}

	got, err := s.primary.GetTick(ctx, tick)
	if err != nil {
		return nil, err
	}
	s.cacheJSON(ctx, tickKey(tick), got)
	return got, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListTicks(ctx context.Context) ([]model.TickSummary, error) {
	return s.primary.ListTicks(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cached(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func tickKey(tick int) string           { return fmt.Sprintf("tick:%d", tick) }
func tickFillsKey(tick int) string      { return fmt.Sprintf("tick:%d:fills", tick) }
func agentFillsKey(agent string) string { return fmt.Sprintf("agent:%s:fills", agent) }
