// Package model defines the value records shared across the clearing engine.
// All monetary values and quantities use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a buyer's request to purchase a quantity of a good from a named
// seller at or below MaxPrice. Orders are immutable once submitted.
type Order struct {
	BuyerID  string          `json:"buyer_id"`
	SellerID string          `json:"seller_id"`
	Good     string          `json:"good"`
	Quantity decimal.Decimal `json:"quantity"`
	MaxPrice decimal.Decimal `json:"max_price"` // ceiling, not a target
}

// Quote is a seller's standing offer. Only the market mutates
// QuantityAvailable; everything handed out of the market is a copy.
type Quote struct {
	SellerID          string          `json:"seller_id"`
	Good              string          `json:"good"`
	Price             decimal.Decimal `json:"price"`
	QuantityAvailable decimal.Decimal `json:"quantity_available"`
}

// QuoteKey identifies a quote in the registry. A seller has at most one
// quote per good.
type QuoteKey struct {
	SellerID string
	Good     string
}

// Key returns the registry key for q.
func (q Quote) Key() QuoteKey {
	return QuoteKey{SellerID: q.SellerID, Good: q.Good}
}

// Fill is a (possibly partial) execution of an order against a quote.
type Fill struct {
	ID        string          `json:"id"`
	Order     Order           `json:"order"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Cost      decimal.Decimal `json:"cost"`
	Clamped   bool            `json:"clamped"` // shrunk to the buyer's cash
}

// Rejection is an order that was consumed by a clearing pass without a fill.
type Rejection struct {
	Order  Order  `json:"order"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// ClearReport is the outcome of one clearing pass.
type ClearReport struct {
	Filled   []Fill      `json:"filled"`
	Rejected []Rejection `json:"rejected"`
}

// FilledOrders returns the orders that were filled, in processing order.
func (r ClearReport) FilledOrders() []Order {
	orders := make([]Order, 0, len(r.Filled))
	for _, f := range r.Filled {
		orders = append(orders, f.Order)
	}
	return orders
}

// Volume returns the total quantity and total cost across all fills.
func (r ClearReport) Volume() (qty, cost decimal.Decimal) {
	for _, f := range r.Filled {
		qty = qty.Add(f.Quantity)
		cost = cost.Add(f.Cost)
	}
	return qty, cost
}

// AgentSnapshot is a read-only copy of one agent's ledger state.
type AgentSnapshot struct {
	AgentID   string                     `json:"agent_id"`
	Balance   decimal.Decimal            `json:"balance"`
	Inventory map[string]decimal.Decimal `json:"inventory"`
}

// SettlementEntry is an immutable journal record of one fill.
// Once created, these are never modified or deleted.
type SettlementEntry struct {
	ID        string          `json:"id" db:"id"`
	Tick      int             `json:"tick" db:"tick"`
	BuyerID   string          `json:"buyer_id" db:"buyer_id"`
	SellerID  string          `json:"seller_id" db:"seller_id"`
	Good      string          `json:"good" db:"good"`
	Quantity  decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	Cost      decimal.Decimal `json:"cost" db:"cost"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// NewSettlementEntry builds the journal record for a fill cleared on tick.
func NewSettlementEntry(tick int, f Fill, at time.Time) SettlementEntry {
	return SettlementEntry{
		ID:        f.ID,
		Tick:      tick,
		BuyerID:   f.Order.BuyerID,
		SellerID:  f.Order.SellerID,
		Good:      f.Order.Good,
		Quantity:  f.Quantity,
		UnitPrice: f.UnitPrice,
		Cost:      f.Cost,
		Timestamp: at,
	}
}

// TickSummary aggregates one simulation tick.
type TickSummary struct {
	Tick        int             `json:"tick" db:"tick"`
	Filled      int             `json:"filled" db:"filled"`
	Rejected    int             `json:"rejected" db:"rejected"`
	Volume      decimal.Decimal `json:"volume" db:"volume"`
	Turnover    decimal.Decimal `json:"turnover" db:"turnover"`
	MoneySupply decimal.Decimal `json:"money_supply" db:"money_supply"`
	ClearedAt   time.Time       `json:"cleared_at" db:"cleared_at"`
}
