package ap

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gemledger/gemledger/internal/money"
	"github.com/gemledger/gemledger/internal/shared"
)

var (
	// ErrSellerNotFound indicates a missing seller.
	ErrSellerNotFound = fmt.Errorf("%w: seller", shared.ErrNotFound)
	// ErrPaymentNotFound indicates a missing seller payment.
	ErrPaymentNotFound = fmt.Errorf("%w: seller payment", shared.ErrNotFound)
	// ErrDiamondNotOwned is returned when an allocation targets another seller's diamond.
	ErrDiamondNotOwned = fmt.Errorf("%w: diamond not owned by seller", shared.ErrNotFound)
	// ErrOverAllocated is returned when allocations exceed the payment or a diamond's due.
	ErrOverAllocated = fmt.Errorf("%w: allocation exceeds available amount", shared.ErrValidation)
)

// SellerPayment is money paid to a seller for purchased diamonds.
// UnallocatedAmount is the part not applied to any diamond and kept as credit.
type SellerPayment struct {
	ID                int64     `json:"id"`
	SellerID          int64     `json:"seller_id"`
	Amount            float64   `json:"amount"`
	PaidAt            time.Time `json:"paid_at"`
	Mode              string    `json:"mode"`
	Note              string    `json:"note,omitempty"`
	UnallocatedAmount float64   `json:"unallocated_amount"`
	CreatedAt         time.Time `json:"created_at"`
}

// Allocation applies part of a payment to one diamond's purchase balance.
type Allocation struct {
	ID        int64     `json:"id"`
	PaymentID int64     `json:"seller_payment_id"`
	DiamondID int64     `json:"diamond_id"`
	Amount    float64   `json:"allocated_amount"`
	CreatedAt time.Time `json:"created_at"`
}

// AllocationInput is an explicit allocation requested by the caller.
type AllocationInput struct {
	DiamondID int64   `json:"diamond_id" validate:"required,gt=0"`
	Amount    float64 `json:"amount" validate:"gt=0"`
}

// CreateSellerPaymentInput describes a payment. Without Allocations the amount
// is spread over the seller's oldest obligations first.
type CreateSellerPaymentInput struct {
	SellerID       int64             `json:"seller_id" validate:"required,gt=0"`
	Amount         float64           `json:"amount" validate:"gt=0"`
	Date           time.Time         `json:"date"`
	Mode           string            `json:"mode" validate:"required,max=32"`
	Note           string            `json:"note" validate:"max=500"`
	Allocations    []AllocationInput `json:"allocations" validate:"omitempty,dive"`
	IdempotencyKey string            `json:"-"`
}

// PaymentResult is a stored payment with its allocations.
type PaymentResult struct {
	Payment     SellerPayment `json:"payment"`
	Allocations []Allocation  `json:"allocations"`
}

// Debt is the outstanding purchase balance of one diamond.
type Debt struct {
	DiamondID int64
	Due       float64
}

// Planned is one allocation computed by Allocate.
type Planned struct {
	DiamondID int64
	Amount    float64
}

// AllocationPlan is the outcome of distributing a payment.
type AllocationPlan struct {
	Allocations []Planned
	Remaining   float64
}

// Allocate walks debts in the given order and applies amount to each until it
// is used up. Debts with nothing due are skipped. The walk stops once the
// remainder is within money.Epsilon.
func Allocate(amount float64, debts []Debt) AllocationPlan {
	remaining := decimal.NewFromFloat(amount).Round(2)
	eps := decimal.NewFromFloat(money.Epsilon)
	var plan AllocationPlan
	for _, d := range debts {
		if remaining.LessThanOrEqual(eps) {
			break
		}
		due := decimal.NewFromFloat(d.Due).Round(2)
		if !due.IsPositive() {
			continue
		}
		alloc := decimal.Min(remaining, due)
		remaining = remaining.Sub(alloc)
		plan.Allocations = append(plan.Allocations, Planned{DiamondID: d.DiamondID, Amount: alloc.InexactFloat64()})
	}
	plan.Remaining = remaining.InexactFloat64()
	return plan
}

// checkExplicit validates caller-supplied allocations against the payment
// amount. Both sides are compared at cent precision with no tolerance, so the
// allocations can never exceed the payment.
func checkExplicit(amount float64, allocs []AllocationInput) error {
	seen := make(map[int64]struct{}, len(allocs))
	total := decimal.Zero
	for i, a := range allocs {
		if _, dup := seen[a.DiamondID]; dup {
			return shared.FieldErrors{fmt.Sprintf("allocations[%d].diamond_id", i): "duplicate diamond"}
		}
		seen[a.DiamondID] = struct{}{}
		total = total.Add(decimal.NewFromFloat(a.Amount).Round(2))
	}
	if limit := decimal.NewFromFloat(amount).Round(2); total.GreaterThan(limit) {
		return fmt.Errorf("%w: allocations total %s, payment %s", ErrOverAllocated, total.StringFixed(2), limit.StringFixed(2))
	}
	return nil
}
