package sales

import (
	"github.com/shopspring/decimal"

	"github.com/gemledger/gemledger/internal/inventory"
	"github.com/gemledger/gemledger/internal/money"
)

// lineTotals is the arithmetic of one invoice line in base and client currency.
type lineTotals struct {
	costUSD      float64
	profit       float64
	amountUSD    float64
	billedRate   float64
	billedAmount float64
}

// computeLine prices qty units of d sold at salePrice. Profit uses the
// discounted cost and ignores commission.
func computeLine(d inventory.Diamond, qty int, salePrice float64, conv money.Converter) lineTotals {
	cost := decimal.NewFromFloat(d.EffectiveCost())
	sale := decimal.NewFromFloat(salePrice)
	q := decimal.NewFromInt(int64(qty))
	amount := sale.Mul(q)
	return lineTotals{
		costUSD:      cost.Round(2).InexactFloat64(),
		profit:       sale.Sub(cost).Mul(q).Round(2).InexactFloat64(),
		amountUSD:    amount.Round(2).InexactFloat64(),
		billedRate:   conv.ToClient(salePrice),
		billedAmount: conv.ToClient(amount.InexactFloat64()),
	}
}
