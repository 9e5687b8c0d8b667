// Package store defines the settlement journal for the clearing engine.
// Implementations include PostgreSQL (durable audit trail), Redis (read-through
// cache), and in-memory (for testing). The journal is write-only from the
// engine's point of view: ledger and market state are never rebuilt from it.
package store

import (
	"context"
	"errors"

	"github.com/atmx/clearing-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the journal interface.
type Store interface {
	// --- Immutable fill journal ---

	// RecordFill appends an immutable settlement record.
	RecordFill(ctx context.Context, entry *model.SettlementEntry) error

	// FillsByTick returns all fills cleared on tick, in settlement order.
	FillsByTick(ctx context.Context, tick int) ([]model.SettlementEntry, error)

	// FillsByAgent returns all fills where agentID was buyer or seller.
	FillsByAgent(ctx context.Context, agentID string) ([]model.SettlementEntry, error)

	// --- Tick summaries ---

	// RecordTick stores the summary of a cleared tick.
	RecordTick(ctx context.Context, summary *model.TickSummary) error

	// GetTick returns the summary for tick.
	GetTick(ctx context.Context, tick int) (*model.TickSummary, error)

	// ListTicks returns every tick summary in tick order.
	ListTicks(ctx context.Context) ([]model.TickSummary, error)
}
