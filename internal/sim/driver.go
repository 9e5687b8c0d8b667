package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atmx/clearing-engine/internal/agent"
	"github.com/atmx/clearing-engine/internal/market"
	"github.com/atmx/clearing-engine/internal/metrics"
	"github.com/atmx/clearing-engine/internal/model"
)

// Observer is notified after every cleared tick.
type Observer interface {
	OnTick(ctx context.Context, report model.ClearReport, summary model.TickSummary) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, report model.ClearReport, summary model.TickSummary) error

func (f ObserverFunc) OnTick(ctx context.Context, report model.ClearReport, summary model.TickSummary) error {
	return f(ctx, report, summary)
}

// Driver advances the economy one tick at a time. Within a tick, agents of
// the same role decide concurrently; their intents are then submitted in
// agent order so runs are reproducible.
type Driver struct {
	coord     *Coordinator
	agents    []agent.Agent
	observers []Observer
	now       func() time.Time

	mu   sync.Mutex   // serializes Step
	tick atomic.Int64 // ticks cleared; readable while a Step is running
}

// NewDriver creates a driver for agents over coord.
func NewDriver(coord *Coordinator, agents []agent.Agent, observers ...Observer) *Driver {
	return &Driver{
		coord:     coord,
		agents:    agents,
		observers: observers,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Tick returns the number of ticks cleared so far.
func (d *Driver) Tick() int {
	return int(d.tick.Load())
}

// Setup opens every agent's accounts.
func (d *Driver) Setup(ctx context.Context) error {
	for _, a := range d.agents {
		for _, in := range a.Setup() {
			if err := d.coord.Submit(ctx, in); err != nil {
				return fmt.Errorf("setup %s: %w", a.ID(), err)
			}
		}
	}
	return nil
}

// Submit forwards an externally decided intent (e.g. from the HTTP API).
// It is cleared with the next tick.
func (d *Driver) Submit(ctx context.Context, in agent.Intent) error {
	return d.coord.Submit(ctx, in)
}

// Step runs one full tick: firms act, consumers act, then the market clears.
func (d *Driver) Step(ctx context.Context) (model.TickSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tick := int(d.tick.Load())
	for _, role := range []agent.Role{agent.RoleFirm, agent.RoleConsumer} {
		if err := d.runPhase(ctx, tick, role); err != nil {
			return model.TickSummary{}, err
		}
	}

	report, err := d.coord.Clear(ctx, tick)
	if err != nil {
		return model.TickSummary{}, fmt.Errorf("clear tick %d: %w", tick, err)
	}

	volume, turnover := report.Volume()
	summary := model.TickSummary{
		Tick:        tick,
		Filled:      len(report.Filled),
		Rejected:    len(report.Rejected),
		Volume:      volume,
		Turnover:    turnover,
		MoneySupply: d.coord.MoneySupply(),
		ClearedAt:   d.now(),
	}
	d.tick.Add(1)

	for _, r := range report.Rejected {
		slog.Debug("order rejected",
			"tick", tick,
			"buyer", r.Order.BuyerID,
			"seller", r.Order.SellerID,
			"good", r.Order.Good,
			"reason", r.Reason,
			"err", r.Err,
		)
	}
	slog.Info("tick cleared",
		"tick", tick,
		"filled", summary.Filled,
		"rejected", summary.Rejected,
		"volume", volume.String(),
		"turnover", turnover.String(),
		"money_supply", summary.MoneySupply.String(),
	)

	var errs []error
	for _, obs := range d.observers {
		if err := obs.OnTick(ctx, report, summary); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("tick observer failed", "tick", tick, "err", err)
	}
	return summary, nil
}

// runPhase lets every agent with role decide in parallel, then submits the
// intents in agent order. Intents the core refuses are dropped and logged;
// they never abort the tick.
func (d *Driver) runPhase(ctx context.Context, tick int, role agent.Role) error {
	var group []agent.Agent
	for _, a := range d.agents {
		if a.Role() == role {
			group = append(group, a)
		}
	}

	decided := make([][]agent.Intent, len(group))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range group {
		i, a := i, a
		g.Go(func() error {
			intents, err := a.Act(gctx, tick, d.coord)
			if err != nil {
				return fmt.Errorf("%s %s act: %w", role, a.ID(), err)
			}
			decided[i] = intents
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, intents := range decided {
		for _, in := range intents {
			err := d.coord.Submit(ctx, in)
			switch {
			case err == nil:
			case errors.Is(err, market.ErrInvalidOrder),
				errors.Is(err, market.ErrInvalidQuote),
				errors.Is(err, ErrForeignIntent),
				errors.Is(err, ErrUnknownIntent):
				metrics.IntentsDropped.WithLabelValues(in.Kind.String()).Inc()
				slog.Warn("intent dropped", "tick", tick, "agent", group[i].ID(), "kind", in.Kind.String(), "err", err)
			default:
				return err
			}
		}
	}
	return nil
}

// Run steps ticks times (forever when ticks <= 0), waiting interval between
// ticks. It returns when ctx is cancelled or the ticks are done.
func (d *Driver) Run(ctx context.Context, ticks int, interval time.Duration) error {
	var wait <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		wait = ticker.C
	}

	for n := 0; ticks <= 0 || n < ticks; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if wait != nil && n > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-wait:
			}
		}
		if _, err := d.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}
