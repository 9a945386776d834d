package inventory

import (
	"fmt"
	"time"

	"github.com/gemledger/gemledger/internal/money"
	"github.com/gemledger/gemledger/internal/shared"
)

// Status is the stock state of a diamond.
type Status string

const (
	// StatusInStock marks a diamond available for sale.
	StatusInStock Status = "in_stock"
	// StatusSold marks a diamond whose quantity is exhausted.
	StatusSold Status = "sold"
	// StatusInCart marks a diamond reserved for a pending sale.
	StatusInCart Status = "in_cart"
)

// DebtStatus tracks how much of the purchase price was paid to the seller.
type DebtStatus string

const (
	DebtUnpaid        DebtStatus = "unpaid"
	DebtPartiallyPaid DebtStatus = "partially_paid"
	DebtPaid          DebtStatus = "paid"
)

var (
	// ErrInsufficientStock is returned when a sale exceeds the available quantity.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", shared.ErrConflict)
	// ErrInvalidTransition is returned for a status change the state machine forbids.
	ErrInvalidTransition = fmt.Errorf("%w: invalid diamond status transition", shared.ErrConflict)
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be positive", shared.ErrValidation)
	// ErrDiamondNotFound indicates a missing diamond row.
	ErrDiamondNotFound = fmt.Errorf("%w: diamond", shared.ErrNotFound)
)

// Diamond is one stock record. Cost and purchase amounts are in the base currency.
type Diamond struct {
	ID             int64      `json:"id"`
	StockNo        string     `json:"stock_no"`
	SellerID       int64      `json:"seller_id,omitempty"`
	Shape          string     `json:"shape"`
	Color          string     `json:"color"`
	Clarity        string     `json:"clarity"`
	Carat          float64    `json:"carat"`
	CostPrice      float64    `json:"cost_price"`
	DiscountPct    float64    `json:"discount_pct"`
	Quantity       int        `json:"quantity"`
	Status         Status     `json:"status"`
	BuyPrice       float64    `json:"buy_price"`
	BuyDate        *time.Time `json:"buy_date,omitempty"`
	PaidAmount     float64    `json:"paid_amount"`
	PaymentStatus  DebtStatus `json:"payment_status"`
	PaymentDueDate *time.Time `json:"payment_due_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// EffectiveCost is the unit cost after the supplier discount.
func (d Diamond) EffectiveCost() float64 {
	return money.Discounted(d.CostPrice, d.DiscountPct)
}

// Due is the amount still owed to the seller.
func (d Diamond) Due() float64 {
	return money.Sub(d.BuyPrice, d.PaidAmount)
}

// A reserved diamond must be released back to stock before it can be invoiced.
var transitions = map[Status][]Status{
	StatusInStock: {StatusInCart, StatusSold},
	StatusInCart:  {StatusInStock},
	StatusSold:    {StatusInStock},
}

// Transition validates a status change. Staying in the same state is allowed.
func Transition(from, to Status) error {
	if from == to {
		return nil
	}
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// Sell removes qty units from stock. Only in-stock diamonds can be sold, and
// the diamond becomes sold when nothing is left.
func Sell(d *Diamond, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if d.Quantity-qty < 0 {
		return fmt.Errorf("%w: diamond %d has %d, requested %d", ErrInsufficientStock, d.ID, d.Quantity, qty)
	}
	if d.Status != StatusInStock {
		return fmt.Errorf("%w: diamond %d is %s", ErrInvalidTransition, d.ID, d.Status)
	}
	d.Quantity -= qty
	if d.Quantity <= 0 {
		if err := Transition(d.Status, StatusSold); err != nil {
			return err
		}
		d.Status = StatusSold
	}
	return nil
}

// Restore puts qty units back into stock and marks the diamond in stock.
func Restore(d *Diamond, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	d.Quantity += qty
	d.Status = StatusInStock
	return nil
}

// DebtStatusFor derives the seller payment status from the amounts paid.
func DebtStatusFor(paid, buyPrice float64) DebtStatus {
	switch {
	case paid >= buyPrice-money.Epsilon:
		return DebtPaid
	case paid <= money.Epsilon:
		return DebtUnpaid
	default:
		return DebtPartiallyPaid
	}
}
