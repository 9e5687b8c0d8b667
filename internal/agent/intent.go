// Package agent implements fixed-policy economic agents. Agents never touch
// the ledger or market directly: each tick they read a View and return the
// Intents they want applied, which a single coordinator then executes.
package agent

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/clearing-engine/internal/model"
)

// Kind selects which core operation an Intent maps to.
type Kind int

const (
	KindCredit Kind = iota + 1
	KindAddGood
	KindPostQuote
	KindSubmitOrder
)

func (k Kind) String() string {
	switch k {
	case KindCredit:
		return "credit"
	case KindAddGood:
		return "add_good"
	case KindPostQuote:
		return "post_quote"
	case KindSubmitOrder:
		return "submit_order"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Intent is an already-decided numeric action proposed by an agent.
type Intent struct {
	Kind    Kind            `json:"kind"`
	AgentID string          `json:"agent_id"`
	Good    string          `json:"good,omitempty"`
	Amount  decimal.Decimal `json:"amount"` // Credit amount or AddGood delta
	Quote   model.Quote     `json:"quote"`
	Order   model.Order     `json:"order"`
}

// Credit proposes adding amount to agent's balance.
func Credit(agent string, amount decimal.Decimal) Intent {
	return Intent{Kind: KindCredit, AgentID: agent, Amount: amount}
}

// AddGood proposes adjusting agent's inventory of good by delta.
func AddGood(agent, good string, delta decimal.Decimal) Intent {
	return Intent{Kind: KindAddGood, AgentID: agent, Good: good, Amount: delta}
}

// PostQuote proposes a standing offer.
func PostQuote(q model.Quote) Intent {
	return Intent{Kind: KindPostQuote, AgentID: q.SellerID, Good: q.Good, Quote: q}
}

// SubmitOrder proposes a purchase order.
func SubmitOrder(o model.Order) Intent {
	return Intent{Kind: KindSubmitOrder, AgentID: o.BuyerID, Good: o.Good, Order: o}
}
