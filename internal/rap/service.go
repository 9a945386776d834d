package rap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/gemledger/gemledger/internal/platform/cache"
	"github.com/gemledger/gemledger/internal/shared"
)

// ErrRateNotFound indicates no base rate covers the requested stone.
var ErrRateNotFound = fmt.Errorf("%w: rap rate", shared.ErrNotFound)

// RateSource loads the rate and discount tables.
type RateSource interface {
	LoadTables(ctx context.Context) (Tables, error)
}

// Params describes the stone to price.
type Params struct {
	Color                 string  `json:"color" validate:"required"`
	Shape                 string  `json:"shape" validate:"required"`
	Clarity               string  `json:"clarity" validate:"required"`
	Carat                 float64 `json:"carat" validate:"gt=0"`
	AdditionalDiscountPct float64 `json:"additional_discount_pct" validate:"gte=0,lte=100"`
}

// Quote is a priced stone.
type Quote struct {
	Color                 Color     `json:"color"`
	Shape                 Shape     `json:"shape"`
	ShapeCode             ShapeCode `json:"s_code"`
	Clarity               Clarity   `json:"clarity"`
	Carat                 float64   `json:"carat"`
	BaseRate              float64   `json:"base_rate"`
	DiscountPct           float64   `json:"discount_pct"`
	NetRate               float64   `json:"net_rate"`
	Amount                float64   `json:"amount"`
	AdditionalDiscountPct float64   `json:"additional_discount_pct"`
	Price                 float64   `json:"price"`
}

// Calculator prices stones from cached tables.
type Calculator struct {
	source RateSource
	cache  *cache.Versioned
	group  singleflight.Group
	logger *slog.Logger
}

// NewCalculator wires a calculator. A nil cache loads the tables on every call.
func NewCalculator(source RateSource, c *cache.Versioned, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{source: source, cache: c, logger: logger}
}

// Calculate prices the stone: the base rate less the table discount, times
// carat, less the additional discount.
func (c *Calculator) Calculate(ctx context.Context, p Params) (Quote, error) {
	if err := shared.Validate(p); err != nil {
		return Quote{}, err
	}
	color, err := ParseColor(p.Color)
	if err != nil {
		return Quote{}, err
	}
	shape, err := ParseShape(p.Shape)
	if err != nil {
		return Quote{}, err
	}
	clarity, err := ParseClarity(p.Clarity)
	if err != nil {
		return Quote{}, err
	}

	tables, err := c.tables(ctx)
	if err != nil {
		return Quote{}, err
	}
	code := shape.Code()
	rate, ok := match(tables.Rates, color, code, p.Carat)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s %s %.2fct", ErrRateNotFound, color, code, p.Carat)
	}
	var discount float64
	if row, ok := match(tables.Discounts, color, code, p.Carat); ok {
		discount = row.Value
	}

	hundred := decimal.NewFromInt(100)
	one := decimal.NewFromInt(1)
	net := decimal.NewFromFloat(rate.Value).Mul(one.Sub(decimal.NewFromFloat(discount).Div(hundred)))
	amount := net.Mul(decimal.NewFromFloat(p.Carat))
	final := amount.Mul(one.Sub(decimal.NewFromFloat(p.AdditionalDiscountPct).Div(hundred)))

	return Quote{
		Color:                 color,
		Shape:                 shape,
		ShapeCode:             code,
		Clarity:               clarity,
		Carat:                 p.Carat,
		BaseRate:              rate.Value,
		DiscountPct:           discount,
		NetRate:               net.Round(2).InexactFloat64(),
		Amount:                amount.Round(2).InexactFloat64(),
		AdditionalDiscountPct: p.AdditionalDiscountPct,
		Price:                 final.Round(2).InexactFloat64(),
	}, nil
}

// Invalidate drops the cached tables so the next call reloads them.
func (c *Calculator) Invalidate(ctx context.Context) error {
	ver, err := c.cache.Bump(ctx)
	if err != nil {
		return fmt.Errorf("rap: invalidate cache: %w", err)
	}
	c.logger.Info("rap tables invalidated", slog.Int64("version", ver))
	return nil
}

func (c *Calculator) tables(ctx context.Context) (Tables, error) {
	key, err := c.cache.BuildKey(ctx, "tables")
	if err != nil {
		c.logger.Warn("rap cache unavailable", slog.Any("error", err))
		return c.source.LoadTables(ctx)
	}
	ch := c.group.DoChan(key, func() (any, error) {
		var t Tables
		err := c.cache.FetchJSON(ctx, key, &t, func(ctx context.Context) (any, error) {
			return c.source.LoadTables(ctx)
		})
		return t, err
	})
	select {
	case <-ctx.Done():
		return Tables{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Tables{}, res.Err
		}
		return res.Val.(Tables), nil
	}
}
