package ar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gemledger/gemledger/internal/platform/db"
	"github.com/gemledger/gemledger/internal/shared"
)

// ErrInvoiceNotFound indicates a missing invoice.
var ErrInvoiceNotFound = fmt.Errorf("%w: invoice", shared.ErrNotFound)

// Repository provides PostgreSQL backed persistence for receivables.
type Repository struct {
	pool   *pgxpool.Pool
	policy db.TxPolicy
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, policy db.TxPolicy) *Repository {
	return &Repository{pool: pool, policy: policy}
}

// TxRepository is the row-locked view of invoices used while applying payments.
type TxRepository interface {
	GetForUpdate(ctx context.Context, invoiceID int64) (Ledger, error)
	Save(ctx context.Context, l Ledger) error
}

type txRepo struct {
	q db.DBTX
}

// WithTx runs fn in a bounded, retried transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.RunInTx(ctx, r.pool, r.policy, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

const selectLedger = `SELECT id, number, currency, grand_total_client, paid_amount, balance_due,
	payment_status, due_date, payment_history FROM invoices`

// Get loads the receivable view of an invoice.
func (r *Repository) Get(ctx context.Context, invoiceID int64) (Ledger, error) {
	return scanLedger(r.pool.QueryRow(ctx, selectLedger+` WHERE id = $1`, invoiceID), invoiceID)
}

// ListOpen returns every invoice that still carries a balance.
func (r *Repository) ListOpen(ctx context.Context) ([]Ledger, error) {
	rows, err := r.pool.Query(ctx, selectLedger+` WHERE payment_status IN ('Pending','Partial','Overdue') AND balance_due > 0 ORDER BY due_date, id`)
	if err != nil {
		return nil, fmt.Errorf("ar: list open: %w", err)
	}
	defer rows.Close()
	var out []Ledger
	for rows.Next() {
		l, err := scanLedgerRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// MarkOverdue relabels open invoices past their due date.
func (r *Repository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET payment_status = 'Overdue', updated_at = NOW()
		WHERE payment_status IN ('Pending','Partial') AND due_date < $1 AND balance_due > 0.01`, asOf)
	if err != nil {
		return 0, fmt.Errorf("ar: mark overdue: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, invoiceID int64) (Ledger, error) {
	return scanLedger(t.q.QueryRow(ctx, selectLedger+` WHERE id = $1 FOR UPDATE`, invoiceID), invoiceID)
}

func (t *txRepo) Save(ctx context.Context, l Ledger) error {
	history, err := json.Marshal(nonNil(l.History))
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, `UPDATE invoices SET paid_amount = $2, balance_due = $3, payment_status = $4,
		payment_history = $5, updated_at = NOW() WHERE id = $1`,
		l.InvoiceID, l.PaidAmount, l.BalanceDue, string(l.Status), history)
	if err != nil {
		return fmt.Errorf("ar: save ledger: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrInvoiceNotFound, l.InvoiceID)
	}
	return nil
}

func scanLedger(row pgx.Row, id int64) (Ledger, error) {
	l, err := scanLedgerRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ledger{}, fmt.Errorf("%w %d", ErrInvoiceNotFound, id)
	}
	return l, err
}

func scanLedgerRow(row pgx.Row) (Ledger, error) {
	var l Ledger
	var status string
	var history []byte
	if err := row.Scan(&l.InvoiceID, &l.Number, &l.Currency, &l.GrandTotal, &l.PaidAmount, &l.BalanceDue, &status, &l.DueDate, &history); err != nil {
		return Ledger{}, err
	}
	l.Status = Status(status)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &l.History); err != nil {
			return Ledger{}, fmt.Errorf("ar: decode payment history: %w", err)
		}
	}
	l.History = nonNil(l.History)
	return l, nil
}

func nonNil(h []PaymentEntry) []PaymentEntry {
	if h == nil {
		return []PaymentEntry{}
	}
	return h
}
