// Package sim drives the economy tick by tick. A Coordinator owns the ledger
// and market as their single writer; a Driver runs agent decisions in
// parallel and funnels the resulting intents through the coordinator.
package sim

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/atmx/clearing-engine/internal/agent"
	"github.com/atmx/clearing-engine/internal/ident"
)

var ErrInvalidScenario = errors.New("sim: invalid scenario")

// Scenario describes the agent population of a run.
type Scenario struct {
	Ticks     int              `yaml:"ticks"`
	Firms     []FirmConfig     `yaml:"firms"`
	Consumers []ConsumerConfig `yaml:"consumers"`
}

type FirmConfig struct {
	ID          string          `yaml:"id"`
	Goods       []string        `yaml:"goods"`
	InitialCash decimal.Decimal `yaml:"initial_cash"`
	Price       decimal.Decimal `yaml:"price"`
	Supply      SupplyConfig    `yaml:"supply"`
}

type SupplyConfig struct {
	Quantity  decimal.Decimal `yaml:"quantity"`
	UnitPrice decimal.Decimal `yaml:"unit_price"`
}

// ConsumerConfig describes a consumer. Without orders it spends its budget
// across Goods at the quoted prices each tick.
type ConsumerConfig struct {
	ID     string            `yaml:"id"`
	Income decimal.Decimal   `yaml:"income"`
	Goods  []string          `yaml:"goods"`
	Orders []agent.OrderPlan `yaml:"orders"`
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// DefaultScenario is one firm selling two goods to two consumers: one with
// standing orders, one splitting its budget across the quoted goods.
func DefaultScenario() *Scenario {
	n := decimal.NewFromInt
	return &Scenario{
		Ticks: 10,
		Firms: []FirmConfig{{
			ID:          "firm1",
			Goods:       []string{"widget", "gadget"},
			InitialCash: n(1000),
			Price:       n(15),
			Supply:      SupplyConfig{Quantity: n(20), UnitPrice: n(10)},
		}},
		Consumers: []ConsumerConfig{
			{
				ID:     "consumer1",
				Income: n(100),
				Goods:  []string{"widget", "gadget"},
				Orders: []agent.OrderPlan{
					{SellerID: "firm1", Good: "widget", Quantity: n(2), MaxPrice: n(15)},
					{SellerID: "firm1", Good: "gadget", Quantity: n(1), MaxPrice: n(20)},
				},
			},
			{
				ID:     "consumer2",
				Income: n(40),
				Goods:  []string{"widget", "gadget"},
			},
		},
	}
}

// Validate checks identifiers, uniqueness and non-negative parameters.
func (s *Scenario) Validate() error {
	if s.Ticks < 0 {
		return fmt.Errorf("%w: ticks must not be negative", ErrInvalidScenario)
	}
	seen := make(map[string]bool)
	checkID := func(id string) error {
		if err := ident.ValidateAgentID(id); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate agent %s", ErrInvalidScenario, id)
		}
		seen[id] = true
		return nil
	}
	checkGoods := func(goods []string) error {
		for _, g := range goods {
			if err := ident.ValidateGood(g); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
			}
		}
		return nil
	}

	for _, f := range s.Firms {
		if err := checkID(f.ID); err != nil {
			return err
		}
		if len(f.Goods) == 0 {
			return fmt.Errorf("%w: firm %s produces no goods", ErrInvalidScenario, f.ID)
		}
		if err := checkGoods(f.Goods); err != nil {
			return err
		}
		if !f.Price.IsPositive() {
			return fmt.Errorf("%w: firm %s price must be positive", ErrInvalidScenario, f.ID)
		}
		if f.InitialCash.IsNegative() || f.Supply.Quantity.IsNegative() || f.Supply.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: firm %s has negative parameters", ErrInvalidScenario, f.ID)
		}
	}
	for _, c := range s.Consumers {
		if err := checkID(c.ID); err != nil {
			return err
		}
		if err := checkGoods(c.Goods); err != nil {
			return err
		}
		if c.Income.IsNegative() {
			return fmt.Errorf("%w: consumer %s income must not be negative", ErrInvalidScenario, c.ID)
		}
		for _, o := range c.Orders {
			if err := ident.ValidateAgentID(o.SellerID); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
			}
			if err := ident.ValidateGood(o.Good); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidScenario, err)
			}
			if !o.Quantity.IsPositive() || o.MaxPrice.IsNegative() {
				return fmt.Errorf("%w: consumer %s has an invalid order for %s", ErrInvalidScenario, c.ID, o.Good)
			}
		}
	}
	return nil
}

// Agents builds the agent population, firms first.
func (s *Scenario) Agents() []agent.Agent {
	out := make([]agent.Agent, 0, len(s.Firms)+len(s.Consumers))
	for _, f := range s.Firms {
		out = append(out, &agent.Firm{
			Name:            f.ID,
			Goods:           f.Goods,
			InitialCash:     f.InitialCash,
			Price:           f.Price,
			SupplyQuantity:  f.Supply.Quantity,
			SupplyUnitPrice: f.Supply.UnitPrice,
		})
	}
	for _, c := range s.Consumers {
		out = append(out, &agent.Consumer{
			Name:   c.ID,
			Income: c.Income,
			Goods:  c.Goods,
			Plans:  c.Orders,
		})
	}
	return out
}
