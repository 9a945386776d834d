package money

import "strings"

// NotApplicableGST is printed when the buyer is outside India.
const NotApplicableGST = "Not Applicable"

// Default Indian GST split applied to INR invoices.
const (
	DefaultCGSTRate = 0.75
	DefaultSGSTRate = 0.75
)

// TaxBreakdown is the tax applied to one invoice subtotal.
type TaxBreakdown struct {
	CGST      float64
	SGST      float64
	GSTNumber string
}

// Total returns the sum of all tax components.
func (t TaxBreakdown) Total() float64 {
	return Sum(t.CGST, t.SGST)
}

// TaxStrategy computes tax for a client-currency subtotal.
type TaxStrategy interface {
	Compute(subtotal float64, currency, country string) TaxBreakdown
}

// GSTStrategy applies Indian central and state GST to INR invoices.
type GSTStrategy struct {
	CGSTRate         float64
	SGSTRate         float64
	CompanyGSTNumber string
}

// NewGSTStrategy builds the strategy with the configured rates. A zero rate
// disables that component of the tax.
func NewGSTStrategy(cgstRate, sgstRate float64, companyGSTNumber string) GSTStrategy {
	return GSTStrategy{CGSTRate: cgstRate, SGSTRate: sgstRate, CompanyGSTNumber: companyGSTNumber}
}

// Compute implements TaxStrategy. Tax is charged only on INR subtotals; the
// GST number is shown only for Indian buyers, whatever the currency.
func (s GSTStrategy) Compute(subtotal float64, currency, country string) TaxBreakdown {
	var out TaxBreakdown
	if strings.EqualFold(strings.TrimSpace(currency), INR) {
		out.CGST = Percent(subtotal, s.CGSTRate)
		out.SGST = Percent(subtotal, s.SGSTRate)
	}
	out.GSTNumber = NotApplicableGST
	if strings.EqualFold(strings.TrimSpace(country), "india") && s.CompanyGSTNumber != "" {
		out.GSTNumber = s.CompanyGSTNumber
	}
	return out
}

// NoTax is a TaxStrategy that never charges tax.
type NoTax struct{}

// Compute implements TaxStrategy.
func (NoTax) Compute(float64, string, string) TaxBreakdown {
	return TaxBreakdown{GSTNumber: NotApplicableGST}
}
