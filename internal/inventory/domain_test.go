package inventory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gemledger/gemledger/internal/shared"
)

func TestSellDecrementsAndMarksSold(t *testing.T) {
	d := Diamond{ID: 1, Quantity: 2, Status: StatusInStock}

	require.NoError(t, Sell(&d, 1))
	require.Equal(t, 1, d.Quantity)
	require.Equal(t, StatusInStock, d.Status)

	require.NoError(t, Sell(&d, 1))
	require.Equal(t, 0, d.Quantity)
	require.Equal(t, StatusSold, d.Status)
}

func TestSellRejectsOversell(t *testing.T) {
	d := Diamond{ID: 7, Quantity: 1, Status: StatusInStock}
	err := Sell(&d, 2)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 1, d.Quantity)

	require.ErrorIs(t, Sell(&d, 0), shared.ErrValidation)
}

func TestSellRejectsReservedDiamond(t *testing.T) {
	d := Diamond{ID: 3, Quantity: 2, Status: StatusInCart}
	err := Sell(&d, 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, 2, d.Quantity)
	require.Equal(t, StatusInCart, d.Status)
	require.ErrorIs(t, Transition(StatusInCart, StatusSold), ErrInvalidTransition)
}

func TestRestoreAlwaysReturnsToStock(t *testing.T) {
	d := Diamond{ID: 1, Quantity: 0, Status: StatusSold}
	require.NoError(t, Restore(&d, 1))
	require.Equal(t, 1, d.Quantity)
	require.Equal(t, StatusInStock, d.Status)

	cart := Diamond{ID: 2, Quantity: 1, Status: StatusInCart}
	require.NoError(t, Restore(&cart, 2))
	require.Equal(t, 3, cart.Quantity)
	require.Equal(t, StatusInStock, cart.Status)
}

func TestTransition(t *testing.T) {
	require.NoError(t, Transition(StatusInStock, StatusInCart))
	require.NoError(t, Transition(StatusSold, StatusInStock))
	require.NoError(t, Transition(StatusSold, StatusSold))
	require.ErrorIs(t, Transition(StatusSold, StatusInCart), ErrInvalidTransition)
}

func TestEffectiveCostAndDue(t *testing.T) {
	d := Diamond{CostPrice: 1000, DiscountPct: 10, BuyPrice: 500, PaidAmount: 120.5}
	require.InDelta(t, 900.0, d.EffectiveCost(), 1e-9)
	require.Equal(t, 379.5, d.Due())
}

func TestDebtStatusFor(t *testing.T) {
	require.Equal(t, DebtUnpaid, DebtStatusFor(0, 500))
	require.Equal(t, DebtUnpaid, DebtStatusFor(0.01, 500))
	require.Equal(t, DebtPartiallyPaid, DebtStatusFor(200, 500))
	require.Equal(t, DebtPaid, DebtStatusFor(499.995, 500))
	require.Equal(t, DebtPaid, DebtStatusFor(500, 500))
}
