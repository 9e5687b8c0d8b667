package agent

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/atmx/clearing-engine/internal/model"
)

// SupplyGood is the production input firms buy from outside the economy.
const SupplyGood = "supply"

// Role orders agents into phases within a tick: firms act before consumers.
type Role int

const (
	RoleFirm Role = iota
	RoleConsumer
)

func (r Role) String() string {
	if r == RoleFirm {
		return "firm"
	}
	return "consumer"
}

// View is the read-only state an agent decides from. Balances and
// inventories are read live from the ledger, never cached by the agent.
type View interface {
	Balance(agent string) decimal.Decimal
	Inventory(agent, good string) decimal.Decimal
	Quotes() []model.Quote
}

// Agent proposes intents for a tick.
type Agent interface {
	ID() string
	Role() Role
	// Setup returns the intents that open the agent's accounts.
	Setup() []Intent
	// Act returns the intents for tick. It must not mutate shared state.
	Act(ctx context.Context, tick int, v View) ([]Intent, error)
}
