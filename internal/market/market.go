// Package market collects orders and quotes between clearing passes and
// settles them against the ledger.
//
// Orders queue FIFO and are consumed exactly once by Clear: filled or
// rejected, never carried over. Quotes are keyed by (seller, good); posting
// for an existing key replaces the old quote. The market is the sole owner of
// quote state; callers only ever see copies.
package market

import (
	"container/list"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/clearing-engine/internal/ledger"
	"github.com/atmx/clearing-engine/internal/model"
)

var (
	// ErrInvalidOrder is returned by SubmitOrder for malformed orders.
	ErrInvalidOrder = errors.New("market: invalid order")

	// ErrInvalidQuote is returned by PostQuote for malformed quotes.
	ErrInvalidQuote = errors.New("market: invalid quote")

	// ErrNoMatchingQuote means no quote from the order's seller for the good
	// has capacity at or below the order's max price.
	ErrNoMatchingQuote = errors.New("market: no matching quote")

	// ErrZeroFill means the fill shrank to nothing, because the buyer has no
	// cash or the seller holds none of the good.
	ErrZeroFill = errors.New("market: fill quantity is zero")
)

// Rejection reasons used in reports and metric labels.
const (
	ReasonNoMatch               = "no_matching_quote"
	ReasonInsufficientFunds     = "insufficient_funds"
	ReasonInsufficientInventory = "insufficient_inventory"
	ReasonOther                 = "other"
)

// Settler is the ledger surface needed to settle a fill.
type Settler interface {
	Balance(agent string) decimal.Decimal
	Inventory(agent, good string) decimal.Decimal
	Settle(buyer, seller, good string, quantity, cost decimal.Decimal) error
}

var _ Settler = (*ledger.Ledger)(nil)

// View is the read-only market surface handed to agents.
type View interface {
	Quotes() []model.Quote
	Quote(seller, good string) (model.Quote, bool)
}

// Market holds pending orders and the quote registry.
type Market struct {
	mu     sync.Mutex
	orders *list.List     // of model.Order, FIFO
	quotes []*model.Quote // insertion order
	newID  func() string
}

// New creates an empty market.
func New() *Market {
	return &Market{
		orders: list.New(),
		newID:  func() string { return uuid.New().String() },
	}
}

// SubmitOrder appends order to the queue. The buyer's ability to pay is not
// checked here.
func (m *Market) SubmitOrder(order model.Order) error {
	if err := validateOrder(order); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders.PushBack(order)
	return nil
}

// PostQuote replaces any quote for the same (seller, good) and appends q at
// the end of the registry.
func (m *Market) PostQuote(q model.Quote) error {
	if err := validateQuote(q); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := q.Key()
	kept := m.quotes[:0]
	for _, existing := range m.quotes {
		if existing.Key() != key {
			kept = append(kept, existing)
		}
	}
	// Clear the tail so replaced quotes can be collected.
	for i := len(kept); i < len(m.quotes); i++ {
		m.quotes[i] = nil
	}
	owned := q
	m.quotes = append(kept, &owned)
	return nil
}

// Quotes returns a copy of every quote in insertion order.
func (m *Market) Quotes() []model.Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Quote, 0, len(m.quotes))
	for _, q := range m.quotes {
		out = append(out, *q)
	}
	return out
}

// Quote returns a copy of the quote for (seller, good).
func (m *Market) Quote(seller, good string) (model.Quote, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := model.QuoteKey{SellerID: seller, Good: good}
	for _, q := range m.quotes {
		if q.Key() == key {
			return *q, true
		}
	}
	return model.Quote{}, false
}

// PendingOrders returns the number of queued orders.
func (m *Market) PendingOrders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders.Len()
}

// Clear drains the order queue, attempting exactly one fill per order.
// A failed order is recorded in the report's Rejected list and the pass
// continues with the next order.
func (m *Market) Clear(l Settler) model.ClearReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	var report model.ClearReport
	for m.orders.Len() > 0 {
		order := m.orders.Remove(m.orders.Front()).(model.Order)

		fill, err := m.fill(order, l)
		if err != nil {
			report.Rejected = append(report.Rejected, model.Rejection{
				Order:  order,
				Reason: Reason(err),
				Err:    err,
			})
			continue
		}
		report.Filled = append(report.Filled, fill)
	}
	return report
}

// fill matches order against the registry and settles it on l.
// Must be called with m.mu held.
func (m *Market) fill(order model.Order, l Settler) (model.Fill, error) {
	q := m.match(order)
	if q == nil {
		return model.Fill{}, fmt.Errorf("%w: %s/%s at <= %s",
			ErrNoMatchingQuote, order.SellerID, order.Good, order.MaxPrice)
	}

	qty := decimal.Min(order.Quantity, q.QuantityAvailable)

	// The quote is a seller-declared claim; the ledger is authoritative.
	if held := l.Inventory(q.SellerID, q.Good); held.LessThan(qty) {
		qty = held
	}
	if !qty.IsPositive() {
		return model.Fill{}, fmt.Errorf("%w: %w: %s holds no %s",
			ErrZeroFill, ledger.ErrInsufficientInventory, q.SellerID, q.Good)
	}

	cost := q.Price.Mul(qty)
	clamped := false
	if bal := l.Balance(order.BuyerID); bal.LessThan(cost) {
		// Spend the buyer's entire cash instead of rejecting.
		cost = bal
		qty = decimal.Min(bal.Div(q.Price), qty)
		clamped = true
		if !qty.IsPositive() || !cost.IsPositive() {
			return model.Fill{}, fmt.Errorf("%w: %w: %s has %s",
				ErrZeroFill, ledger.ErrInsufficientFunds, order.BuyerID, bal)
		}
	}

	if err := l.Settle(order.BuyerID, q.SellerID, q.Good, qty, cost); err != nil {
		return model.Fill{}, err
	}
	q.QuantityAvailable = q.QuantityAvailable.Sub(qty)

	return model.Fill{
		ID:        m.newID(),
		Order:     order,
		Quantity:  qty,
		UnitPrice: q.Price,
		Cost:      cost,
		Clamped:   clamped,
	}, nil
}

// match returns the first quote in insertion order that satisfies order.
// The order's seller is a hard routing constraint.
func (m *Market) match(order model.Order) *model.Quote {
	for _, q := range m.quotes {
		if q.SellerID == order.SellerID &&
			q.Good == order.Good &&
			q.Price.LessThanOrEqual(order.MaxPrice) &&
			q.QuantityAvailable.IsPositive() {
			return q
		}
	}
	return nil
}

// Reason classifies a clearing error for reports and metrics.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNoMatchingQuote):
		return ReasonNoMatch
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return ReasonInsufficientFunds
	case errors.Is(err, ledger.ErrInsufficientInventory):
		return ReasonInsufficientInventory
	default:
		return ReasonOther
	}
}

func validateOrder(o model.Order) error {
	switch {
	case o.BuyerID == "" || o.SellerID == "":
		return fmt.Errorf("%w: buyer and seller are required", ErrInvalidOrder)
	case o.Good == "":
		return fmt.Errorf("%w: good is required", ErrInvalidOrder)
	case !o.Quantity.IsPositive():
		return fmt.Errorf("%w: quantity must be positive, got %s", ErrInvalidOrder, o.Quantity)
	case o.MaxPrice.IsNegative():
		return fmt.Errorf("%w: max price must not be negative, got %s", ErrInvalidOrder, o.MaxPrice)
	}
	return nil
}

func validateQuote(q model.Quote) error {
	switch {
	case q.SellerID == "":
		return fmt.Errorf("%w: seller is required", ErrInvalidQuote)
	case q.Good == "":
		return fmt.Errorf("%w: good is required", ErrInvalidQuote)
	case !q.Price.IsPositive():
		return fmt.Errorf("%w: price must be positive, got %s", ErrInvalidQuote, q.Price)
	case q.QuantityAvailable.IsNegative():
		return fmt.Errorf("%w: quantity must not be negative, got %s", ErrInvalidQuote, q.QuantityAvailable)
	}
	return nil
}
