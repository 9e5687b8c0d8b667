package ledger

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCredit_CreatesAccount(t *testing.T) {
	l := New()
	l.Credit("alice", d(100))

	require.True(t, l.Balance("alice").Equal(d(100)), "balance %s", l.Balance("alice"))
	require.True(t, l.Has("alice"), "account should exist after credit")
}

func TestCredit_NegativeAllowed(t *testing.T) {
	l := New()
	l.Credit("alice", d(-25))

	require.True(t, l.Balance("alice").Equal(d(-25)),
		"credit should be able to push balance negative, got %s", l.Balance("alice"))
}

func TestBalance_UnknownAgentIsZero(t *testing.T) {
	l := New()

	require.True(t, l.Balance("nobody").IsZero())
	require.True(t, l.Inventory("nobody", "x").IsZero())
	require.False(t, l.Has("nobody"), "reads must not create accounts")
}

func TestTransferMoney_Success(t *testing.T) {
	l := New()
	l.Credit("alice", d(100))

	require.NoError(t, l.TransferMoney("alice", "bob", d(40)))
	require.True(t, l.Balance("alice").Equal(d(60)), "alice %s", l.Balance("alice"))
	require.True(t, l.Balance("bob").Equal(d(40)), "bob %s", l.Balance("bob"))
}

func TestTransferMoney_ExactBalance(t *testing.T) {
	l := New()
	l.Credit("alice", d(30))

	require.NoError(t, l.TransferMoney("alice", "bob", d(30)), "transfer of entire balance should succeed")
	require.True(t, l.Balance("alice").IsZero(), "alice %s", l.Balance("alice"))
}

func TestTransferMoney_InsufficientFunds(t *testing.T) {
	l := New()
	l.Credit("alice", d(10))

	err := l.TransferMoney("alice", "bob", d(10.01))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.True(t, l.Balance("alice").Equal(d(10)), "failed transfer must have no effect")
	require.True(t, l.Balance("bob").IsZero(), "failed transfer must have no effect")
}

func TestTransferMoney_NegativeAmount(t *testing.T) {
	l := New()
	l.Credit("alice", d(10))

	require.ErrorIs(t, l.TransferMoney("alice", "bob", d(-5)), ErrInvalidAmount)
}

func TestTransferGood_Success(t *testing.T) {
	l := New()
	l.AddGood("firm", "widget", d(10))

	require.NoError(t, l.TransferGood("firm", "alice", "widget", d(4)))
	require.True(t, l.Inventory("firm", "widget").Equal(d(6)), "firm %s", l.Inventory("firm", "widget"))
	require.True(t, l.Inventory("alice", "widget").Equal(d(4)), "alice %s", l.Inventory("alice", "widget"))
}

func TestTransferGood_InsufficientInventory(t *testing.T) {
	l := New()
	l.AddGood("firm", "widget", d(2))

	err := l.TransferGood("firm", "alice", "widget", d(3))
	require.ErrorIs(t, err, ErrInsufficientInventory)
	require.True(t, l.Inventory("firm", "widget").Equal(d(2)), "failed transfer must have no effect")
	require.True(t, l.Inventory("alice", "widget").IsZero(), "failed transfer must have no effect")
}

func TestAddGood_SignedDelta(t *testing.T) {
	l := New()
	l.AddGood("firm", "supply", d(20))
	l.AddGood("firm", "supply", d(-20))

	require.True(t, l.Inventory("firm", "supply").IsZero(), "supply %s", l.Inventory("firm", "supply"))
}

func TestInventorySnapshot_IsCopy(t *testing.T) {
	l := New()
	l.AddGood("firm", "widget", d(5))

	snap := l.InventorySnapshot("firm")
	snap["widget"] = d(999)

	require.True(t, l.Inventory("firm", "widget").Equal(d(5)), "mutating a snapshot must not affect the ledger")
}

func TestAgents_Sorted(t *testing.T) {
	l := New()
	l.Open("carol")
	l.Credit("alice", d(1))
	l.AddGood("bob", "x", d(1))

	require.Equal(t, []string{"alice", "bob", "carol"}, l.Agents())
}

func TestTransferMoney_Concurrent(t *testing.T) {
	l := New()
	l.Credit("a", d(1000))
	l.Credit("b", d(1000))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = l.TransferMoney("a", "b", d(7))
		}()
		go func() {
			defer wg.Done()
			_ = l.TransferMoney("b", "a", d(3))
		}()
	}
	wg.Wait()

	require.True(t, l.TotalBalance().Equal(d(2000)), "money supply changed under concurrency: %s", l.TotalBalance())
	require.False(t, l.Balance("a").IsNegative(), "transfers must never overdraw")
	require.False(t, l.Balance("b").IsNegative(), "transfers must never overdraw")
}

func TestSettle_MovesBothSides(t *testing.T) {
	l := New()
	l.Credit("alice", d(100))
	l.AddGood("firm", "widget", d(10))

	require.NoError(t, l.Settle("alice", "firm", "widget", d(5), d(50)))
	require.True(t, l.Balance("alice").Equal(d(50)), "alice %s", l.Balance("alice"))
	require.True(t, l.Balance("firm").Equal(d(50)), "firm %s", l.Balance("firm"))
	require.True(t, l.Inventory("alice", "widget").Equal(d(5)))
	require.True(t, l.Inventory("firm", "widget").Equal(d(5)))
}

func TestSettle_InventoryFailureLeavesMoneyUntouched(t *testing.T) {
	l := New()
	l.Credit("alice", d(100))
	l.AddGood("firm", "widget", d(1))

	err := l.Settle("alice", "firm", "widget", d(5), d(50))
	require.ErrorIs(t, err, ErrInsufficientInventory)
	require.True(t, l.Balance("alice").Equal(d(100)), "failed settlement must not move money")
	require.True(t, l.Balance("firm").IsZero(), "failed settlement must not move money")
}

func TestSettle_FundsFailure(t *testing.T) {
	l := New()
	l.Credit("alice", d(10))
	l.AddGood("firm", "widget", d(10))

	err := l.Settle("alice", "firm", "widget", d(5), d(50))
	require.ErrorIs(t, err, ErrInsufficientFunds)
	require.True(t, l.Inventory("firm", "widget").Equal(d(10)), "failed settlement must not move goods")
}
