package agent

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/atmx/clearing-engine/internal/model"
)

// Firm buys supplies, turns them evenly into its goods and quotes every good
// it holds at a fixed price.
type Firm struct {
	Name        string
	Goods       []string
	InitialCash decimal.Decimal
	Price       decimal.Decimal

	// Supplies bought each tick from outside the economy.
	SupplyQuantity  decimal.Decimal
	SupplyUnitPrice decimal.Decimal
}

var _ Agent = (*Firm)(nil)

func (f *Firm) ID() string { return f.Name }
func (f *Firm) Role() Role { return RoleFirm }

func (f *Firm) Setup() []Intent {
	out := []Intent{
		Credit(f.Name, f.InitialCash),
		AddGood(f.Name, SupplyGood, decimal.Zero),
	}
	for _, g := range f.Goods {
		out = append(out, AddGood(f.Name, g, decimal.Zero))
	}
	return out
}

// Act purchases supplies, produces, then quotes.
func (f *Firm) Act(_ context.Context, _ int, v View) ([]Intent, error) {
	var out []Intent

	bought, purchase := f.purchaseSupplies(v.Balance(f.Name))
	out = append(out, purchase...)

	supply := v.Inventory(f.Name, SupplyGood).Add(bought)
	produced, production := f.produce(supply)
	out = append(out, production...)

	for _, g := range f.Goods {
		held := v.Inventory(f.Name, g).Add(produced[g])
		if !held.IsPositive() {
			continue
		}
		out = append(out, PostQuote(model.Quote{
			SellerID:          f.Name,
			Good:              g,
			Price:             f.Price,
			QuantityAvailable: held,
		}))
	}
	return out, nil
}

// purchaseSupplies spends at most cash on supplies. The money leaves the
// economy; the supplies enter it.
func (f *Firm) purchaseSupplies(cash decimal.Decimal) (decimal.Decimal, []Intent) {
	if !f.SupplyQuantity.IsPositive() || !f.SupplyUnitPrice.IsPositive() {
		return decimal.Zero, nil
	}
	cost := decimal.Min(f.SupplyQuantity.Mul(f.SupplyUnitPrice), cash)
	if !cost.IsPositive() {
		return decimal.Zero, nil
	}
	qty := cost.Div(f.SupplyUnitPrice)
	return qty, []Intent{
		Credit(f.Name, cost.Neg()),
		AddGood(f.Name, SupplyGood, qty),
	}
}

// produce converts the whole supply stock into equal shares of each good.
func (f *Firm) produce(supply decimal.Decimal) (map[string]decimal.Decimal, []Intent) {
	produced := make(map[string]decimal.Decimal, len(f.Goods))
	if !supply.IsPositive() || len(f.Goods) == 0 {
		return produced, nil
	}
	each := supply.Div(decimal.NewFromInt(int64(len(f.Goods))))
	out := make([]Intent, 0, len(f.Goods)+1)
	for _, g := range f.Goods {
		produced[g] = each
		out = append(out, AddGood(f.Name, g, each))
	}
	out = append(out, AddGood(f.Name, SupplyGood, supply.Neg()))
	return produced, out
}
