package sim

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atmx/clearing-engine/internal/agent"
	"github.com/atmx/clearing-engine/internal/ledger"
	"github.com/atmx/clearing-engine/internal/market"
	"github.com/atmx/clearing-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// startCoordinator runs a coordinator for the lifetime of the test.
func startCoordinator(t *testing.T) (*Coordinator, *ledger.Ledger, *market.Market) {
	t.Helper()
	l := ledger.New()
	m := market.New()
	c := NewCoordinator(l, m)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return c, l, m
}

func TestCoordinator_SettlesScenario(t *testing.T) {
	c, l, _ := startCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.Submit(ctx, agent.Credit("A", d(100))))
	require.NoError(t, c.Submit(ctx, agent.AddGood("B", "x", d(20))))
	require.NoError(t, c.Submit(ctx, agent.PostQuote(model.Quote{
		SellerID: "B", Good: "x", Price: d(10), QuantityAvailable: d(20),
	})))
	require.NoError(t, c.Submit(ctx, agent.SubmitOrder(model.Order{
		BuyerID: "A", SellerID: "B", Good: "x", Quantity: d(5), MaxPrice: d(10),
	})))
	require.Equal(t, 1, c.PendingOrders())

	report, err := c.Clear(ctx, 0)
	require.NoError(t, err)
	require.Len(t, report.Filled, 1)

	require.True(t, l.Balance("A").Equal(d(50)), "A balance %s", l.Balance("A"))
	require.True(t, l.Balance("B").Equal(d(50)), "B balance %s", l.Balance("B"))
	require.True(t, l.Inventory("A", "x").Equal(d(5)))

	q, ok := c.Quote("B", "x")
	require.True(t, ok)
	require.True(t, q.QuantityAvailable.Equal(d(15)))
	require.Zero(t, c.PendingOrders())
}

func TestCoordinator_RejectsForeignIntent(t *testing.T) {
	c, _, _ := startCoordinator(t)
	ctx := context.Background()

	in := agent.SubmitOrder(model.Order{
		BuyerID: "A", SellerID: "B", Good: "x", Quantity: d(1), MaxPrice: d(1),
	})
	in.AgentID = "mallory"

	require.ErrorIs(t, c.Submit(ctx, in), ErrForeignIntent)
	require.Zero(t, c.PendingOrders())
}

func TestCoordinator_InvalidQuote(t *testing.T) {
	c, _, _ := startCoordinator(t)

	err := c.Submit(context.Background(), agent.PostQuote(model.Quote{SellerID: "B", Good: "x"}))
	require.ErrorIs(t, err, market.ErrInvalidQuote)
}

func TestCoordinator_UnknownIntent(t *testing.T) {
	c, _, _ := startCoordinator(t)

	err := c.Submit(context.Background(), agent.Intent{Kind: agent.Kind(42), AgentID: "A"})
	require.ErrorIs(t, err, ErrUnknownIntent)
}

func TestCoordinator_Stopped(t *testing.T) {
	c := NewCoordinator(ledger.New(), market.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, c.Run(ctx), context.Canceled)

	require.ErrorIs(t, c.Submit(context.Background(), agent.Credit("A", d(1))), ErrCoordinatorStopped)
	_, err := c.Clear(context.Background(), 0)
	require.ErrorIs(t, err, ErrCoordinatorStopped)
}

func TestCoordinator_Snapshot(t *testing.T) {
	c, _, _ := startCoordinator(t)
	ctx := context.Background()

	_, ok := c.Snapshot("A")
	require.False(t, ok)

	require.NoError(t, c.Submit(ctx, agent.Credit("A", d(7))))
	require.NoError(t, c.Submit(ctx, agent.AddGood("A", "x", d(2))))

	snap, ok := c.Snapshot("A")
	require.True(t, ok)
	require.True(t, snap.Balance.Equal(d(7)))
	require.True(t, snap.Inventory["x"].Equal(d(2)))
	require.Equal(t, []string{"A"}, c.Agents())
}
