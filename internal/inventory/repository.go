package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gemledger/gemledger/internal/platform/db"
)

// Repository persists diamonds in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the row-locking stock operations used inside ledger
// transactions. Callers in other packages obtain one with NewTxStore.
type TxRepository interface {
	GetDiamondForUpdate(ctx context.Context, id int64) (Diamond, error)
	UpdateStock(ctx context.Context, d Diamond) error
	ListOutstandingBySellerForUpdate(ctx context.Context, sellerID int64) ([]Diamond, error)
	UpdateDebt(ctx context.Context, d Diamond) error
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxStore(tx))
	})
}

// GetDiamond loads a diamond without locking.
func (r *Repository) GetDiamond(ctx context.Context, id int64) (Diamond, error) {
	return scanDiamond(r.pool.QueryRow(ctx, selectDiamond+` WHERE id = $1`, id), id)
}

// TxStore runs diamond queries on a caller-supplied connection or transaction.
type TxStore struct {
	q db.DBTX
}

// NewTxStore wraps q. Pass a pgx.Tx to take part in the caller's transaction.
func NewTxStore(q db.DBTX) *TxStore {
	return &TxStore{q: q}
}

const selectDiamond = `SELECT id, stock_no, COALESCE(seller_id, 0), shape, color, clarity, carat,
	cost_price, discount_pct, quantity, status, buy_price, buy_date, paid_amount,
	payment_status, payment_due_date, created_at, updated_at
	FROM diamonds`

// GetDiamondForUpdate loads and row-locks a diamond for the rest of the transaction.
func (s *TxStore) GetDiamondForUpdate(ctx context.Context, id int64) (Diamond, error) {
	return scanDiamond(s.q.QueryRow(ctx, selectDiamond+` WHERE id = $1 FOR UPDATE`, id), id)
}

// UpdateStock persists quantity and status.
func (s *TxStore) UpdateStock(ctx context.Context, d Diamond) error {
	tag, err := s.q.Exec(ctx, `UPDATE diamonds SET quantity = $2, status = $3, updated_at = NOW() WHERE id = $1`, d.ID, d.Quantity, string(d.Status))
	if err != nil {
		return fmt.Errorf("inventory: update stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrDiamondNotFound, d.ID)
	}
	return nil
}

// ListOutstandingBySellerForUpdate locks every diamond still owed to the
// seller, oldest obligation first.
func (s *TxStore) ListOutstandingBySellerForUpdate(ctx context.Context, sellerID int64) ([]Diamond, error) {
	rows, err := s.q.Query(ctx, selectDiamond+`
		WHERE seller_id = $1 AND payment_status <> 'paid'
		ORDER BY payment_due_date ASC NULLS LAST, buy_date ASC NULLS LAST, created_at ASC, id ASC
		FOR UPDATE`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("inventory: list outstanding: %w", err)
	}
	defer rows.Close()

	var out []Diamond
	for rows.Next() {
		d, err := scanDiamondRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDebt persists the amount paid to the seller and the derived status.
func (s *TxStore) UpdateDebt(ctx context.Context, d Diamond) error {
	_, err := s.q.Exec(ctx, `UPDATE diamonds SET paid_amount = $2, payment_status = $3, updated_at = NOW() WHERE id = $1`, d.ID, d.PaidAmount, string(d.PaymentStatus))
	if err != nil {
		return fmt.Errorf("inventory: update debt: %w", err)
	}
	return nil
}

func scanDiamond(row pgx.Row, id int64) (Diamond, error) {
	d, err := scanDiamondRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Diamond{}, fmt.Errorf("%w %d", ErrDiamondNotFound, id)
	}
	return d, err
}

func scanDiamondRow(row pgx.Row) (Diamond, error) {
	var d Diamond
	var status, debt string
	err := row.Scan(
		&d.ID, &d.StockNo, &d.SellerID, &d.Shape, &d.Color, &d.Clarity, &d.Carat,
		&d.CostPrice, &d.DiscountPct, &d.Quantity, &status, &d.BuyPrice, &d.BuyDate, &d.PaidAmount,
		&debt, &d.PaymentDueDate, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return Diamond{}, err
	}
	d.Status = Status(status)
	d.PaymentStatus = DebtStatus(debt)
	return d, nil
}
