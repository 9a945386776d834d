package rap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the rate tables from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadTables implements RateSource.
func (r *Repository) LoadTables(ctx context.Context) (Tables, error) {
	rates, err := r.load(ctx, `SELECT id, color, s_code, f_size, t_size, rate FROM rap_rates ORDER BY id`)
	if err != nil {
		return Tables{}, fmt.Errorf("rap: load rates: %w", err)
	}
	discounts, err := r.load(ctx, `SELECT id, color, s_code, f_size, t_size, discount_pct FROM rap_discounts ORDER BY id`)
	if err != nil {
		return Tables{}, fmt.Errorf("rap: load discounts: %w", err)
	}
	return Tables{Rates: rates, Discounts: discounts}, nil
}

func (r *Repository) load(ctx context.Context, query string) ([]Row, error) {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Row, error) {
		var out Row
		var color, code string
		if err := row.Scan(&out.ID, &color, &code, &out.FSize, &out.TSize, &out.Value); err != nil {
			return Row{}, err
		}
		out.Color, out.ShapeCode = Color(color), ShapeCode(code)
		return out, nil
	})
}
