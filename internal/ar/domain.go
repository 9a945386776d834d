package ar

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gemledger/gemledger/internal/money"
	"github.com/gemledger/gemledger/internal/shared"
)

// Status enumerates invoice payment statuses.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusPartial   Status = "Partial"
	StatusPaid      Status = "Paid"
	StatusOverdue   Status = "Overdue"
	StatusCancelled Status = "Cancelled"
)

// ParseStatus validates a payment status label. Labels are case-sensitive.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusPartial, StatusPaid, StatusOverdue, StatusCancelled:
		return st, nil
	}
	return "", shared.Validationf("unknown payment status %q", s)
}

// ErrInvalidAmount is returned for non-positive payment amounts.
var ErrInvalidAmount = fmt.Errorf("%w: payment amount must be positive", shared.ErrValidation)

// PaymentEntry is one immutable line of an invoice's payment history.
type PaymentEntry struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	Amount     float64   `json:"amount"`
	Mode       string    `json:"mode"`
	Note       string    `json:"note,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Ledger is the receivable side of an invoice. Amounts are in the invoice
// (client) currency.
type Ledger struct {
	InvoiceID  int64          `json:"invoice_id"`
	Number     string         `json:"number"`
	Currency   string         `json:"currency"`
	GrandTotal float64        `json:"grand_total"`
	PaidAmount float64        `json:"paid_amount"`
	BalanceDue float64        `json:"balance_due"`
	Status     Status         `json:"payment_status"`
	DueDate    time.Time      `json:"due_date"`
	History    []PaymentEntry `json:"payment_history"`
}

// settle derives paid and balance from grandTotal and the unrounded running
// total. The balance is snapped to zero when it is within a cent of settled,
// which also pins paid to grandTotal; otherwise paid is rounded to cents and
// the balance is whatever remains of grandTotal.
func settle(grandTotal float64, rawPaid decimal.Decimal) (paid, balance float64) {
	grand := decimal.NewFromFloat(grandTotal).Round(2)
	if money.Settled(grand.Sub(rawPaid).InexactFloat64()) {
		return grand.InexactFloat64(), 0
	}
	rounded := rawPaid.Round(2)
	return rounded.InexactFloat64(), grand.Sub(rounded).InexactFloat64()
}

// Balance is what remains of grandTotal after paid, snapped to zero inside
// the money tolerance.
func Balance(grandTotal, paid float64) float64 {
	_, b := settle(grandTotal, decimal.NewFromFloat(paid))
	return b
}

// ApplyPayment records e and re-derives paid, balance and status.
func (l *Ledger) ApplyPayment(e PaymentEntry) {
	raw := decimal.NewFromFloat(l.PaidAmount).Add(decimal.NewFromFloat(e.Amount))
	l.PaidAmount, l.BalanceDue = settle(l.GrandTotal, raw)
	switch {
	case l.BalanceDue <= 0:
		l.Status = StatusPaid
	case l.BalanceDue < l.GrandTotal:
		l.Status = StatusPartial
	}
	l.History = append(l.History, e)
}

// ApplyStatus is a manual status override. Paid and Pending rewrite the
// amounts; every other label only changes the status. History is untouched.
func (l *Ledger) ApplyStatus(st Status) {
	switch st {
	case StatusPaid:
		l.PaidAmount = l.GrandTotal
		l.BalanceDue = 0
	case StatusPending:
		l.PaidAmount = 0
		l.BalanceDue = l.GrandTotal
	}
	l.Status = st
}

// IsOverdue reports whether the invoice is open, unpaid and past due at asOf.
func (l Ledger) IsOverdue(asOf time.Time) bool {
	if l.Status != StatusPending && l.Status != StatusPartial {
		return false
	}
	if l.BalanceDue <= money.Epsilon {
		return false
	}
	return l.DueDate.Before(asOf)
}

// AgingBucket summarises open balances by days past due.
type AgingBucket struct {
	Current   float64 `json:"current"`
	Bucket30  float64 `json:"days_1_30"`
	Bucket60  float64 `json:"days_31_60"`
	Bucket90  float64 `json:"days_61_90"`
	Bucket120 float64 `json:"days_over_90"`
}

// Add places balance into the bucket matching days past due.
func (b *AgingBucket) Add(days int, balance float64) {
	switch {
	case days <= 0:
		b.Current = money.Sum(b.Current, balance)
	case days <= 30:
		b.Bucket30 = money.Sum(b.Bucket30, balance)
	case days <= 60:
		b.Bucket60 = money.Sum(b.Bucket60, balance)
	case days <= 90:
		b.Bucket90 = money.Sum(b.Bucket90, balance)
	default:
		b.Bucket120 = money.Sum(b.Bucket120, balance)
	}
}

// PaymentInput records money received from a client.
type PaymentInput struct {
	Amount         float64   `json:"amount" validate:"gt=0"`
	Date           time.Time `json:"date"`
	Mode           string    `json:"mode" validate:"required,max=32"`
	Note           string    `json:"note" validate:"max=500"`
	IdempotencyKey string    `json:"-"`
}

// PaymentResult is returned after a payment is applied.
type PaymentResult struct {
	Status     Status         `json:"payment_status"`
	PaidAmount float64        `json:"paid_amount"`
	BalanceDue float64        `json:"balance_due"`
	History    []PaymentEntry `json:"payment_history"`
}
