package ap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gemledger/gemledger/internal/inventory"
	"github.com/gemledger/gemledger/internal/platform/db"
	"github.com/gemledger/gemledger/internal/shared"
)

// Repository persists seller payments in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	policy db.TxPolicy
}

// NewRepository constructs Repository. Payments run at ReadCommitted: the
// seller advisory lock serialises them and every debt row is re-read FOR
// UPDATE after the lock is held, so each payment sees the previous one's
// committed allocations.
func NewRepository(pool *pgxpool.Pool, policy db.TxPolicy) *Repository {
	return &Repository{pool: pool, policy: policy.WithIsoLevel(pgx.ReadCommitted)}
}

// TxRepository covers the writes of one payment: the seller lock, the payment
// and allocation rows and the diamonds' debt fields.
type TxRepository interface {
	inventory.TxRepository
	LockSeller(ctx context.Context, sellerID int64) error
	SellerExists(ctx context.Context, sellerID int64) (bool, error)
	InsertPayment(ctx context.Context, p *SellerPayment) error
	InsertAllocation(ctx context.Context, a *Allocation) error
}

type txRepo struct {
	*inventory.TxStore
	q db.DBTX
}

// WithTx runs fn in a bounded transaction that is retried on serialization
// failures and deadlocks.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.RunInTx(ctx, r.pool, r.policy, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{TxStore: inventory.NewTxStore(tx), q: tx})
	})
}

// GetPayment loads a payment and its allocations.
func (r *Repository) GetPayment(ctx context.Context, id int64) (PaymentResult, error) {
	var p SellerPayment
	err := r.pool.QueryRow(ctx, `SELECT id, seller_id, amount, paid_at, mode, note, unallocated_amount, created_at
		FROM seller_payments WHERE id = $1`, id).
		Scan(&p.ID, &p.SellerID, &p.Amount, &p.PaidAt, &p.Mode, &p.Note, &p.UnallocatedAmount, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentResult{}, fmt.Errorf("%w %d", ErrPaymentNotFound, id)
	}
	if err != nil {
		return PaymentResult{}, fmt.Errorf("ap: get payment: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT id, seller_payment_id, diamond_id, allocated_amount, created_at
		FROM seller_payment_allocations WHERE seller_payment_id = $1 ORDER BY id`, id)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("ap: list allocations: %w", err)
	}
	defer rows.Close()
	allocs := []Allocation{}
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.DiamondID, &a.Amount, &a.CreatedAt); err != nil {
			return PaymentResult{}, err
		}
		allocs = append(allocs, a)
	}
	if err := rows.Err(); err != nil {
		return PaymentResult{}, err
	}
	return PaymentResult{Payment: p, Allocations: allocs}, nil
}

func (t *txRepo) LockSeller(ctx context.Context, sellerID int64) error {
	if err := db.AdvisoryXactLock(ctx, t.q, shared.SellerLockKey(sellerID)); err != nil {
		return fmt.Errorf("ap: lock seller: %w", err)
	}
	return nil
}

func (t *txRepo) SellerExists(ctx context.Context, sellerID int64) (bool, error) {
	var ok bool
	if err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sellers WHERE id = $1)`, sellerID).Scan(&ok); err != nil {
		return false, fmt.Errorf("ap: seller exists: %w", err)
	}
	return ok, nil
}

func (t *txRepo) InsertPayment(ctx context.Context, p *SellerPayment) error {
	err := t.q.QueryRow(ctx, `INSERT INTO seller_payments (seller_id, amount, paid_at, mode, note, unallocated_amount)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		p.SellerID, p.Amount, p.PaidAt, p.Mode, p.Note, p.UnallocatedAmount).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("ap: insert payment: %w", err)
	}
	return nil
}

func (t *txRepo) InsertAllocation(ctx context.Context, a *Allocation) error {
	err := t.q.QueryRow(ctx, `INSERT INTO seller_payment_allocations (seller_payment_id, diamond_id, allocated_amount)
		VALUES ($1, $2, $3) RETURNING id, created_at`, a.PaymentID, a.DiamondID, a.Amount).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("ap: insert allocation: %w", err)
	}
	return nil
}
