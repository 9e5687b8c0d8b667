package agent

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atmx/clearing-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// fakeView is a static View for driving agents without a ledger.
type fakeView struct {
	balances  map[string]decimal.Decimal
	inventory map[string]map[string]decimal.Decimal
	quotes    []model.Quote
}

func (v fakeView) Balance(a string) decimal.Decimal      { return v.balances[a] }
func (v fakeView) Inventory(a, g string) decimal.Decimal { return v.inventory[a][g] }
func (v fakeView) Quotes() []model.Quote                 { return v.quotes }

func kinds(in []Intent) []Kind {
	out := make([]Kind, len(in))
	for i, x := range in {
		out[i] = x.Kind
	}
	return out
}

func quote(seller, good string, price, qty float64) model.Quote {
	return model.Quote{SellerID: seller, Good: good, Price: d(price), QuantityAvailable: d(qty)}
}

func requireOrder(t *testing.T, in Intent, seller, good string, qty, maxPrice float64) {
	t.Helper()
	require.Equal(t, KindSubmitOrder, in.Kind)
	require.Equal(t, seller, in.Order.SellerID)
	require.Equal(t, good, in.Order.Good)
	require.True(t, in.Order.Quantity.Equal(d(qty)), "%s quantity %s, want %v", good, in.Order.Quantity, qty)
	require.True(t, in.Order.MaxPrice.Equal(d(maxPrice)), "%s max price %s, want %v", good, in.Order.MaxPrice, maxPrice)
}

// --- Firm ---

func TestFirm_PurchaseProduceQuote(t *testing.T) {
	f := &Firm{
		Name:            "firm",
		Goods:           []string{"widget", "gadget"},
		Price:           d(15),
		SupplyQuantity:  d(20),
		SupplyUnitPrice: d(10),
	}
	v := fakeView{balances: map[string]decimal.Decimal{"firm": d(1000)}}

	intents, err := f.Act(context.Background(), 0, v)
	require.NoError(t, err)
	require.Equal(t,
		[]Kind{KindCredit, KindAddGood, KindAddGood, KindAddGood, KindAddGood, KindPostQuote, KindPostQuote},
		kinds(intents))

	require.True(t, intents[0].Amount.Equal(d(-200)), "supply cost %s", intents[0].Amount)
	require.Equal(t, SupplyGood, intents[1].Good)
	require.True(t, intents[1].Amount.Equal(d(20)), "supply bought %s", intents[1].Amount)
	require.True(t, intents[2].Amount.Equal(d(10)), "widget produced %s", intents[2].Amount)
	require.True(t, intents[3].Amount.Equal(d(10)), "gadget produced %s", intents[3].Amount)
	require.True(t, intents[4].Amount.Equal(d(-20)), "supply consumed %s", intents[4].Amount)

	q := intents[5].Quote
	require.Equal(t, "firm", q.SellerID)
	require.Equal(t, "widget", q.Good)
	require.True(t, q.Price.Equal(d(15)))
	require.True(t, q.QuantityAvailable.Equal(d(10)))
}

func TestFirm_PurchaseLimitedByCash(t *testing.T) {
	f := &Firm{Name: "firm", Goods: []string{"widget"}, Price: d(5), SupplyQuantity: d(20), SupplyUnitPrice: d(10)}
	v := fakeView{balances: map[string]decimal.Decimal{"firm": d(50)}}

	intents, err := f.Act(context.Background(), 0, v)
	require.NoError(t, err)
	require.True(t, intents[0].Amount.Equal(d(-50)), "spent %s", intents[0].Amount.Neg())
	require.True(t, intents[1].Amount.Equal(d(5)), "bought %s", intents[1].Amount)
}

func TestFirm_NoCashNoSupplyNoQuote(t *testing.T) {
	f := &Firm{Name: "firm", Goods: []string{"widget"}, Price: d(5), SupplyQuantity: d(20), SupplyUnitPrice: d(10)}

	intents, err := f.Act(context.Background(), 0, fakeView{})
	require.NoError(t, err)
	require.Empty(t, intents)
}

func TestFirm_QuotesExistingInventory(t *testing.T) {
	f := &Firm{Name: "firm", Goods: []string{"widget"}, Price: d(5)}
	v := fakeView{inventory: map[string]map[string]decimal.Decimal{"firm": {"widget": d(3)}}}

	intents, err := f.Act(context.Background(), 0, v)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	require.Equal(t, KindPostQuote, intents[0].Kind)
	require.True(t, intents[0].Quote.QuantityAvailable.Equal(d(3)))
}

func TestFirm_Setup(t *testing.T) {
	f := &Firm{Name: "firm", Goods: []string{"widget", "gadget"}, InitialCash: d(1000)}
	intents := f.Setup()

	require.Len(t, intents, 4)
	require.Equal(t, KindCredit, intents[0].Kind)
	require.True(t, intents[0].Amount.Equal(d(1000)))
}

// --- Consumer ---

func TestConsumer_PlannedOrders(t *testing.T) {
	c := &Consumer{
		Name:   "consumer",
		Income: d(100),
		Plans:  []OrderPlan{{SellerID: "firm1", Good: "widget", Quantity: d(2), MaxPrice: d(15)}},
	}
	// Quotes are ignored when plans are set.
	v := fakeView{quotes: []model.Quote{quote("firm2", "widget", 1, 100)}}

	intents, err := c.Act(context.Background(), 3, v)
	require.NoError(t, err)
	require.Len(t, intents, 2)
	require.Equal(t, KindCredit, intents[0].Kind)
	require.True(t, intents[0].Amount.Equal(d(100)))
	require.Equal(t, "consumer", intents[1].Order.BuyerID)
	requireOrder(t, intents[1], "firm1", "widget", 2, 15)
}

func TestConsumer_BudgetSplitAcrossGoods(t *testing.T) {
	c := &Consumer{Name: "consumer", Goods: []string{"widget", "gadget"}}
	v := fakeView{
		balances: map[string]decimal.Decimal{"consumer": d(100)},
		quotes: []model.Quote{
			quote("firm1", "widget", 10, 20),
			quote("firm2", "gadget", 5, 3),
		},
	}

	intents, err := c.Act(context.Background(), 0, v)
	require.NoError(t, err)
	require.Len(t, intents, 2)
	// 50 each: 5 widgets at 10; 10 gadgets at 5 capped at the 3 available.
	requireOrder(t, intents[0], "firm1", "widget", 5, 10)
	requireOrder(t, intents[1], "firm2", "gadget", 3, 5)
	require.Equal(t, "consumer", intents[0].Order.BuyerID)
}

func TestConsumer_BudgetIncludesIncome(t *testing.T) {
	c := &Consumer{Name: "consumer", Income: d(40), Goods: []string{"widget"}}
	v := fakeView{
		balances: map[string]decimal.Decimal{"consumer": d(20)},
		quotes:   []model.Quote{quote("firm1", "widget", 10, 100)},
	}

	intents, err := c.Act(context.Background(), 0, v)
	require.NoError(t, err)
	require.Equal(t, []Kind{KindCredit, KindSubmitOrder}, kinds(intents))
	requireOrder(t, intents[1], "firm1", "widget", 6, 10)
}

func TestConsumer_BudgetUsesFirstQuoteForGood(t *testing.T) {
	c := &Consumer{Name: "consumer", Goods: []string{"widget"}}
	v := fakeView{
		balances: map[string]decimal.Decimal{"consumer": d(60)},
		quotes: []model.Quote{
			quote("firm1", "gadget", 1, 100),
			quote("firm2", "widget", 12, 100),
			quote("firm3", "widget", 6, 100),
		},
	}

	intents, err := c.Act(context.Background(), 0, v)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	requireOrder(t, intents[0], "firm2", "widget", 5, 12)
}

func TestConsumer_BudgetSkipsUnquotedGoods(t *testing.T) {
	c := &Consumer{Name: "consumer", Goods: []string{"widget", "gadget"}}
	v := fakeView{
		balances: map[string]decimal.Decimal{"consumer": d(100)},
		quotes:   []model.Quote{quote("firm1", "gadget", 5, 100)},
	}

	intents, err := c.Act(context.Background(), 0, v)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	// The unquoted good's share is not reallocated.
	requireOrder(t, intents[0], "firm1", "gadget", 10, 5)
}

func TestConsumer_BudgetSkipsExhaustedQuote(t *testing.T) {
	c := &Consumer{Name: "consumer", Goods: []string{"widget"}}
	v := fakeView{
		balances: map[string]decimal.Decimal{"consumer": d(100)},
		quotes:   []model.Quote{quote("firm1", "widget", 10, 0)},
	}

	intents, err := c.Act(context.Background(), 0, v)
	require.NoError(t, err)
	require.Empty(t, intents)
}

func TestConsumer_BudgetNoCashNoOrders(t *testing.T) {
	c := &Consumer{Name: "consumer", Goods: []string{"widget"}}
	v := fakeView{quotes: []model.Quote{quote("firm1", "widget", 10, 100)}}

	intents, err := c.Act(context.Background(), 0, v)
	require.NoError(t, err)
	require.Empty(t, intents)
}

func TestConsumer_Setup(t *testing.T) {
	c := &Consumer{Name: "consumer", Goods: []string{"widget", "gadget"}}
	require.Equal(t, []Kind{KindCredit, KindAddGood, KindAddGood}, kinds(c.Setup()))
}

func TestKind_String(t *testing.T) {
	require.Equal(t, "submit_order", KindSubmitOrder.String())
	require.Equal(t, "kind(99)", Kind(99).String())
}
