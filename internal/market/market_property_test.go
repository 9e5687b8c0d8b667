package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/atmx/clearing-engine/internal/ledger"
	"github.com/atmx/clearing-engine/internal/model"
)

var (
	buyers  = []string{"c1", "c2", "c3"}
	sellers = []string{"f1", "f2"}
	goods   = []string{"x", "y"}
)

// Property: clearing any batch conserves money and goods, never overdraws
// anyone, and never leaves a negative quote capacity.
func TestProperty_ClearConserves(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := ledger.New()
		m := New()

		for _, b := range buyers {
			l.Credit(b, decimal.NewFromInt(rapid.Int64Range(0, 500).Draw(t, "cash")))
		}
		for _, s := range sellers {
			for _, g := range goods {
				l.AddGood(s, g, decimal.NewFromInt(rapid.Int64Range(0, 50).Draw(t, "held")))
				// Sellers may over- or under-claim their inventory.
				_ = m.PostQuote(model.Quote{
					SellerID:          s,
					Good:              g,
					Price:             decimal.NewFromInt(rapid.Int64Range(1, 30).Draw(t, "price")),
					QuantityAvailable: decimal.NewFromInt(rapid.Int64Range(0, 80).Draw(t, "claim")),
				})
			}
		}

		n := rapid.IntRange(0, 30).Draw(t, "orders")
		for i := 0; i < n; i++ {
			_ = m.SubmitOrder(model.Order{
				BuyerID:  rapid.SampledFrom(buyers).Draw(t, "buyer"),
				SellerID: rapid.SampledFrom(sellers).Draw(t, "seller"),
				Good:     rapid.SampledFrom(goods).Draw(t, "good"),
				Quantity: decimal.NewFromInt(rapid.Int64Range(1, 40).Draw(t, "qty")),
				MaxPrice: decimal.NewFromInt(rapid.Int64Range(0, 30).Draw(t, "max")),
			})
		}

		money := l.TotalBalance()
		stock := map[string]decimal.Decimal{}
		for _, g := range goods {
			stock[g] = l.TotalInventory(g)
		}

		report := m.Clear(l)

		require.Len(t, report.Filled, n-len(report.Rejected), "every order must be consumed once")
		require.Zero(t, m.PendingOrders(), "queue not drained")
		require.True(t, l.TotalBalance().Equal(money), "money supply changed: %s -> %s", money, l.TotalBalance())
		for _, g := range goods {
			require.True(t, l.TotalInventory(g).Equal(stock[g]), "%s supply changed: %s -> %s", g, stock[g], l.TotalInventory(g))
		}
		for _, a := range l.Agents() {
			require.False(t, l.Balance(a).IsNegative(), "%s overdrawn: %s", a, l.Balance(a))
			for _, g := range goods {
				require.False(t, l.Inventory(a, g).IsNegative(), "%s has negative %s", a, g)
			}
		}
		for _, q := range m.Quotes() {
			require.False(t, q.QuantityAvailable.IsNegative(), "quote %s/%s capacity negative", q.SellerID, q.Good)
		}
		for _, f := range report.Filled {
			require.True(t, f.Quantity.IsPositive(), "fill with non-positive quantity: %+v", f)
			require.False(t, f.UnitPrice.GreaterThan(f.Order.MaxPrice), "fill above ceiling: %s > %s", f.UnitPrice, f.Order.MaxPrice)
		}
	})
}
