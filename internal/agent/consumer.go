package agent

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/atmx/clearing-engine/internal/model"
)

// OrderPlan is a standing purchase a consumer places every tick.
type OrderPlan struct {
	SellerID string          `yaml:"seller" json:"seller"`
	Good     string          `yaml:"good" json:"good"`
	Quantity decimal.Decimal `yaml:"quantity" json:"quantity"`
	MaxPrice decimal.Decimal `yaml:"max_price" json:"max_price"`
}

// Consumer receives a fixed income each tick and spends it. With Plans set it
// places the same standing orders every tick; without, it splits its cash
// evenly across Goods and buys each good from the first seller quoting it.
type Consumer struct {
	Name   string
	Income decimal.Decimal
	Goods  []string
	Plans  []OrderPlan
}

var _ Agent = (*Consumer)(nil)

func (c *Consumer) ID() string { return c.Name }
func (c *Consumer) Role() Role { return RoleConsumer }

func (c *Consumer) Setup() []Intent {
	out := []Intent{Credit(c.Name, decimal.Zero)}
	for _, g := range c.Goods {
		out = append(out, AddGood(c.Name, g, decimal.Zero))
	}
	return out
}

// Act credits income and submits this tick's orders. Orders are submitted
// even when unaffordable; clearing shrinks or rejects them.
func (c *Consumer) Act(_ context.Context, _ int, v View) ([]Intent, error) {
	var out []Intent
	if !c.Income.IsZero() {
		out = append(out, Credit(c.Name, c.Income))
	}
	if len(c.Plans) > 0 {
		return append(out, c.plannedOrders()...), nil
	}
	// Income lands in the same batch, ahead of the orders.
	cash := v.Balance(c.Name).Add(c.Income)
	return append(out, c.budgetOrders(cash, v.Quotes())...), nil
}

func (c *Consumer) plannedOrders() []Intent {
	out := make([]Intent, 0, len(c.Plans))
	for _, p := range c.Plans {
		out = append(out, SubmitOrder(model.Order{
			BuyerID:  c.Name,
			SellerID: p.SellerID,
			Good:     p.Good,
			Quantity: p.Quantity,
			MaxPrice: p.MaxPrice,
		}))
	}
	return out
}

// budgetOrders gives each good an equal share of cash. For every good the
// first quote in registry order sets the seller and the price ceiling, and
// the quantity is min(share / price, quantity available).
func (c *Consumer) budgetOrders(cash decimal.Decimal, quotes []model.Quote) []Intent {
	if len(c.Goods) == 0 || !cash.IsPositive() {
		return nil
	}
	share := cash.Div(decimal.NewFromInt(int64(len(c.Goods))))

	var out []Intent
	for _, g := range c.Goods {
		q, ok := firstQuote(quotes, g)
		if !ok {
			continue
		}
		qty := decimal.Min(share.Div(q.Price), q.QuantityAvailable)
		if !qty.IsPositive() {
			continue
		}
		out = append(out, SubmitOrder(model.Order{
			BuyerID:  c.Name,
			SellerID: q.SellerID,
			Good:     g,
			Quantity: qty,
			MaxPrice: q.Price,
		}))
	}
	return out
}

func firstQuote(quotes []model.Quote, good string) (model.Quote, bool) {
	for _, q := range quotes {
		if q.Good == good {
			return q, true
		}
	}
	return model.Quote{}, false
}
