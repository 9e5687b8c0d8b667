package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/clearing-engine/internal/agent"
	"github.com/atmx/clearing-engine/internal/ledger"
	"github.com/atmx/clearing-engine/internal/market"
	"github.com/atmx/clearing-engine/internal/metrics"
	"github.com/atmx/clearing-engine/internal/model"
)

var (
	// ErrCoordinatorStopped is returned once Run has exited.
	ErrCoordinatorStopped = errors.New("sim: coordinator stopped")

	// ErrForeignIntent is returned when an intent's order or quote names a
	// different agent than the one proposing it.
	ErrForeignIntent = errors.New("sim: intent acts on behalf of another agent")

	// ErrUnknownIntent is returned for intents with an unrecognised kind.
	ErrUnknownIntent = errors.New("sim: unknown intent kind")
)

type intentReq struct {
	intent agent.Intent
	errc   chan error
}

type clearReq struct {
	tick  int
	reply chan model.ClearReport
}

// Coordinator is the single writer for a ledger and market. Workers propose
// intents over a channel; Run applies them one at a time, in arrival order.
// Reads go straight to the ledger and market, which guard their own state.
type Coordinator struct {
	ledger *ledger.Ledger
	market *market.Market

	intents chan intentReq
	clears  chan clearReq
	done    chan struct{}
}

// NewCoordinator creates a coordinator for l and m. Call Run before Submit.
func NewCoordinator(l *ledger.Ledger, m *market.Market) *Coordinator {
	return &Coordinator{
		ledger:  l,
		market:  m,
		intents: make(chan intentReq),
		clears:  make(chan clearReq),
		done:    make(chan struct{}),
	}
}

// Run applies intents and clearing requests until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-c.intents:
			req.errc <- c.apply(req.intent)
		case req := <-c.clears:
			start := time.Now()
			report := c.market.Clear(c.ledger)
			metrics.ObserveClear(req.tick, report, time.Since(start))
			metrics.MoneySupply.Set(c.ledger.TotalBalance().InexactFloat64())
			req.reply <- report
		}
	}
}

// Submit hands intent to the run loop and waits for it to be applied.
func (c *Coordinator) Submit(ctx context.Context, intent agent.Intent) error {
	errc := make(chan error, 1)
	select {
	case c.intents <- intentReq{intent: intent, errc: errc}:
	case <-c.done:
		return ErrCoordinatorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Clear runs one clearing pass on the run loop.
func (c *Coordinator) Clear(ctx context.Context, tick int) (model.ClearReport, error) {
	reply := make(chan model.ClearReport, 1)
	select {
	case c.clears <- clearReq{tick: tick, reply: reply}:
	case <-c.done:
		return model.ClearReport{}, ErrCoordinatorStopped
	case <-ctx.Done():
		return model.ClearReport{}, ctx.Err()
	}
	select {
	case report := <-reply:
		return report, nil
	case <-ctx.Done():
		return model.ClearReport{}, ctx.Err()
	}
}

func (c *Coordinator) apply(in agent.Intent) error {
	switch in.Kind {
	case agent.KindCredit:
		c.ledger.Credit(in.AgentID, in.Amount)
	case agent.KindAddGood:
		c.ledger.AddGood(in.AgentID, in.Good, in.Amount)
	case agent.KindPostQuote:
		if in.Quote.SellerID != in.AgentID {
			return fmt.Errorf("%w: %s quoting as %s", ErrForeignIntent, in.AgentID, in.Quote.SellerID)
		}
		if err := c.market.PostQuote(in.Quote); err != nil {
			return err
		}
		metrics.QuotesPosted.Inc()
	case agent.KindSubmitOrder:
		if in.Order.BuyerID != in.AgentID {
			return fmt.Errorf("%w: %s ordering as %s", ErrForeignIntent, in.AgentID, in.Order.BuyerID)
		}
		if err := c.market.SubmitOrder(in.Order); err != nil {
			return err
		}
		metrics.OrdersSubmitted.Inc()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownIntent, in.Kind)
	}
	return nil
}

// Balance implements agent.View.
func (c *Coordinator) Balance(agentID string) decimal.Decimal { return c.ledger.Balance(agentID) }

// Inventory implements agent.View.
func (c *Coordinator) Inventory(agentID, good string) decimal.Decimal {
	return c.ledger.Inventory(agentID, good)
}

// Quotes implements agent.View.
func (c *Coordinator) Quotes() []model.Quote { return c.market.Quotes() }

// Quote returns a copy of the quote for (seller, good).
func (c *Coordinator) Quote(seller, good string) (model.Quote, bool) {
	return c.market.Quote(seller, good)
}

// Snapshot returns a copy of an agent's ledger state.
func (c *Coordinator) Snapshot(agentID string) (model.AgentSnapshot, bool) {
	if !c.ledger.Has(agentID) {
		return model.AgentSnapshot{}, false
	}
	return c.ledger.Snapshot(agentID), true
}

// Agents lists every agent the ledger knows.
func (c *Coordinator) Agents() []string { return c.ledger.Agents() }

// MoneySupply is the sum of all balances.
func (c *Coordinator) MoneySupply() decimal.Decimal { return c.ledger.TotalBalance() }

// PendingOrders is the number of orders waiting for the next clear.
func (c *Coordinator) PendingOrders() int { return c.market.PendingOrders() }

var _ agent.View = (*Coordinator)(nil)
