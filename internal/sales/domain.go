package sales

import (
	"fmt"
	"time"

	"github.com/gemledger/gemledger/internal/ar"
	"github.com/gemledger/gemledger/internal/sales/customers"
	"github.com/gemledger/gemledger/internal/shared"
)

var (
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = fmt.Errorf("%w: invoice", shared.ErrNotFound)
	// ErrAlreadyInvoiced is returned when a diamond already sits on an active invoice.
	ErrAlreadyInvoiced = fmt.Errorf("%w: diamond already invoiced", shared.ErrConflict)
)

// Invoice is a sale to one client. USD amounts are the base currency; client
// amounts are converted with the single ExchangeRate captured at creation.
type Invoice struct {
	ID               int64         `json:"id"`
	Number           string        `json:"number"`
	ClientID         int64         `json:"client_id"`
	Currency         string        `json:"currency"`
	ExchangeRate     float64       `json:"exchange_rate"`
	SubtotalUSD      float64       `json:"subtotal_usd"`
	SubtotalClient   float64       `json:"subtotal_client"`
	CGSTAmount       float64       `json:"cgst_amount"`
	SGSTAmount       float64       `json:"sgst_amount"`
	GSTNumber        string        `json:"gst_number"`
	GrandTotalClient float64       `json:"grand_total_client"`
	GrandTotalUSD    float64       `json:"grand_total_usd"`
	PaidAmount       float64       `json:"paid_amount"`
	BalanceDue       float64       `json:"balance_due"`
	PaymentStatus    ar.Status     `json:"payment_status"`
	DueDate          time.Time     `json:"due_date"`
	Items            []InvoiceItem `json:"items"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// InvoiceItem is one diamond line of an invoice.
type InvoiceItem struct {
	ID                 int64   `json:"id"`
	InvoiceID          int64   `json:"invoice_id"`
	DiamondID          int64   `json:"diamond_id"`
	LineNo             int     `json:"line_no"`
	Quantity           int     `json:"quantity"`
	SalePriceUSD       float64 `json:"sale_price_usd"`
	CostUSD            float64 `json:"cost_usd"`
	Commission         float64 `json:"commission"`
	Profit             float64 `json:"profit"`
	BilledRateClient   float64 `json:"billed_rate_client"`
	BilledAmountClient float64 `json:"billed_amount_client"`
}

// LineInput is one requested invoice line.
type LineInput struct {
	DiamondID  int64   `json:"diamond_id" validate:"required,gt=0"`
	Quantity   int     `json:"quantity" validate:"required,gt=0"`
	SalePrice  float64 `json:"sale_price" validate:"gt=0"`
	Commission float64 `json:"commission" validate:"gte=0"`
}

// CreateInvoiceInput describes a sale. Exactly one of ClientID or Client is used;
// ClientID wins when both are set.
type CreateInvoiceInput struct {
	ClientID       int64                `json:"client_id" validate:"gte=0"`
	Client         *customers.NewClient `json:"client,omitempty"`
	Currency       string               `json:"currency" validate:"omitempty,len=3"`
	ExchangeRate   float64              `json:"exchange_rate" validate:"gte=0"`
	DueDays        int                  `json:"due_days" validate:"gte=0,lte=365"`
	Items          []LineInput          `json:"items" validate:"required,min=1,dive"`
	IdempotencyKey string               `json:"-"`
}

// BulkDeleteResult reports how many invoices a bulk delete removed.
type BulkDeleteResult struct {
	Deleted int `json:"count"`
}
