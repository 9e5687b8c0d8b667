// Package ledger is the authoritative store of every agent's cash balance and
// per-good inventory. It is the only component allowed to mutate them.
//
// Transfers are zero-sum: TransferMoney and TransferGood move value between two
// accounts and leave the totals unchanged. Only Credit and AddGood inject or
// remove value (income, production, external purchases).
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/atmx/clearing-engine/internal/model"
)

var (
	// ErrInsufficientFunds is returned when a sender's balance is below the
	// requested transfer amount.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInsufficientInventory is returned when a sender holds less of a good
	// than the requested transfer quantity.
	ErrInsufficientInventory = errors.New("ledger: insufficient inventory")

	// ErrInvalidAmount is returned for negative transfer amounts.
	ErrInvalidAmount = errors.New("ledger: transfer amount must not be negative")
)

// Ledger holds balances and inventories for all agents. A single RWMutex
// covers both maps so each transfer is one critical section.
type Ledger struct {
	mu          sync.RWMutex
	balances    map[string]decimal.Decimal
	inventories map[string]map[string]decimal.Decimal
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:    make(map[string]decimal.Decimal),
		inventories: make(map[string]map[string]decimal.Decimal),
	}
}

// Open creates a zero account for agent if none exists.
func (l *Ledger) Open(agent string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.account(agent)
}

// Credit adds amount (any sign) to agent's balance. There is no lower bound:
// this is the bookkeeping path for income and funding, not for trades.
func (l *Ledger) Credit(agent string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.account(agent)
	l.balances[agent] = l.balances[agent].Add(amount)
}

// TransferMoney moves amount from one agent to another, or does nothing and
// returns ErrInsufficientFunds.
func (l *Ledger) TransferMoney(from, to string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.account(from)
	l.account(to)
	if have := l.balances[from]; have.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, have, amount)
	}
	l.balances[from] = l.balances[from].Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}

// TransferGood moves quantity of good from one agent to another, or does
// nothing and returns ErrInsufficientInventory.
func (l *Ledger) TransferGood(from, to, good string, quantity decimal.Decimal) error {
	if quantity.IsNegative() {
		return fmt.Errorf("%w: %s %s", ErrInvalidAmount, quantity, good)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	src := l.inventory(from)
	dst := l.inventory(to)
	if have := src[good]; have.LessThan(quantity) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientInventory, from, have, good, quantity)
	}
	src[good] = src[good].Sub(quantity)
	dst[good] = dst[good].Add(quantity)
	return nil
}

// Settle performs the paired transfers of one trade inside a single critical
// section: cost moves from buyer to seller and quantity of good moves from
// seller to buyer. Either both transfers happen or neither does.
func (l *Ledger) Settle(buyer, seller, good string, quantity, cost decimal.Decimal) error {
	if quantity.IsNegative() || cost.IsNegative() {
		return fmt.Errorf("%w: quantity=%s cost=%s", ErrInvalidAmount, quantity, cost)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.account(buyer)
	src := l.inventory(seller)
	dst := l.inventory(buyer)

	if have := l.balances[buyer]; have.LessThan(cost) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, buyer, have, cost)
	}
	if have := src[good]; have.LessThan(quantity) {
		return fmt.Errorf("%w: %s has %s %s, needs %s", ErrInsufficientInventory, seller, have, good, quantity)
	}

	l.balances[buyer] = l.balances[buyer].Sub(cost)
	l.balances[seller] = l.balances[seller].Add(cost)
	src[good] = src[good].Sub(quantity)
	dst[good] = dst[good].Add(quantity)
	return nil
}

// AddGood adjusts agent's inventory of good by a signed delta. Callers keep
// the result non-negative; it is not enforced here.
func (l *Ledger) AddGood(agent, good string, delta decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inv := l.inventory(agent)
	inv[good] = inv[good].Add(delta)
}

// Balance returns agent's current balance (zero for unknown agents).
func (l *Ledger) Balance(agent string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[agent]
}

// Inventory returns how much of good agent holds.
func (l *Ledger) Inventory(agent, good string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.inventories[agent][good]
}

// InventorySnapshot returns a copy of agent's inventory.
func (l *Ledger) InventorySnapshot(agent string) map[string]decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(l.inventories[agent]))
	for good, qty := range l.inventories[agent] {
		out[good] = qty
	}
	return out
}

// Snapshot returns a read-only copy of agent's balance and inventory.
func (l *Ledger) Snapshot(agent string) model.AgentSnapshot {
	return model.AgentSnapshot{
		AgentID:   agent,
		Balance:   l.Balance(agent),
		Inventory: l.InventorySnapshot(agent),
	}
}

// Has reports whether agent has ever been referenced.
func (l *Ledger) Has(agent string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.balances[agent]
	return ok
}

// Agents returns every known agent ID in sorted order.
func (l *Ledger) Agents() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.balances))
	for id := range l.balances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TotalBalance is the money supply: the sum of every balance.
func (l *Ledger) TotalBalance() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for _, b := range l.balances {
		total = total.Add(b)
	}
	return total
}

// TotalInventory sums good across all agents.
func (l *Ledger) TotalInventory(good string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for _, inv := range l.inventories {
		total = total.Add(inv[good])
	}
	return total
}

// account zero-initializes agent's balance and inventory.
// Must be called with the write lock held.
func (l *Ledger) account(agent string) {
	if _, ok := l.balances[agent]; !ok {
		l.balances[agent] = decimal.Zero
	}
	if _, ok := l.inventories[agent]; !ok {
		l.inventories[agent] = make(map[string]decimal.Decimal)
	}
}

// inventory returns agent's inventory map, creating the account if needed.
// Must be called with the write lock held.
func (l *Ledger) inventory(agent string) map[string]decimal.Decimal {
	l.account(agent)
	return l.inventories[agent]
}
