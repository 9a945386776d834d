package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/gemledger/gemledger/internal/shared"
)

// Base is the currency all cost and sale prices are recorded in.
const Base = "USD"

// INR is the currency that attracts Indian GST.
const INR = "INR"

// ErrInvalidRate indicates a non-positive exchange rate.
var ErrInvalidRate = errors.New("exchange rate must be positive")

// Converter translates between the base currency and one client currency
// using a single rate captured for the whole invoice.
type Converter struct {
	rate decimal.Decimal
}

// NewConverter validates rate. A zero rate means "same as base" and yields 1.
func NewConverter(rate float64) (Converter, error) {
	if rate == 0 {
		rate = 1
	}
	if rate < 0 {
		return Converter{}, fmt.Errorf("%w: %w", shared.ErrValidation, ErrInvalidRate)
	}
	return Converter{rate: decimal.NewFromFloat(rate)}, nil
}

// Rate returns the captured exchange rate.
func (c Converter) Rate() float64 {
	if c.rate.IsZero() {
		return 1
	}
	return c.rate.InexactFloat64()
}

// ToClient converts a base-currency amount into the client currency.
func (c Converter) ToClient(usd float64) float64 {
	return decimal.NewFromFloat(usd).Mul(c.decimalRate()).Round(2).InexactFloat64()
}

// ToBase converts a client-currency amount back into the base currency.
func (c Converter) ToBase(client float64) float64 {
	return decimal.NewFromFloat(client).Div(c.decimalRate()).Round(2).InexactFloat64()
}

func (c Converter) decimalRate() decimal.Decimal {
	if c.rate.IsZero() {
		return decimal.NewFromInt(1)
	}
	return c.rate
}

// NormalizeCurrency upper-cases code and checks it is an ISO 4217 currency.
// An empty code resolves to the base currency.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Base, nil
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", shared.Validationf("unknown currency %q", code)
	}
	return unit.String(), nil
}
