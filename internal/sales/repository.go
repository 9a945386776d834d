package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gemledger/gemledger/internal/ar"
	"github.com/gemledger/gemledger/internal/inventory"
	"github.com/gemledger/gemledger/internal/platform/db"
	"github.com/gemledger/gemledger/internal/sales/customers"
)

const activeDiamondConstraint = "invoice_items_active_diamond"

// Repository persists invoices in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	policy db.TxPolicy
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, policy db.TxPolicy) *Repository {
	return &Repository{pool: pool, policy: policy}
}

// TxRepository is everything an invoice transaction touches: stock rows,
// clients and the invoice tables.
type TxRepository interface {
	inventory.TxRepository
	GetClient(ctx context.Context, id int64) (customers.Client, error)
	CreateClient(ctx context.Context, in customers.NewClient) (customers.Client, error)
	HasActiveItem(ctx context.Context, diamondID int64) (bool, error)
	NextInvoiceNumber(ctx context.Context, at time.Time) (string, error)
	InsertInvoice(ctx context.Context, inv *Invoice) error
	InsertItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	ListItems(ctx context.Context, invoiceID int64) ([]InvoiceItem, error)
	DeleteInvoice(ctx context.Context, id int64) error
}

type txRepo struct {
	*inventory.TxStore
	clients *customers.Store
	q       db.DBTX
}

// WithTx runs fn in a bounded transaction that is retried on serialization
// failures and deadlocks.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.RunInTx(ctx, r.pool, r.policy, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			TxStore: inventory.NewTxStore(tx),
			clients: customers.NewStore(tx),
			q:       tx,
		})
	})
}

const selectInvoice = `SELECT id, number, client_id, currency, exchange_rate, subtotal_usd, subtotal_client,
	cgst_amount, sgst_amount, gst_number, grand_total_client, grand_total_usd, paid_amount,
	balance_due, payment_status, due_date, created_at, updated_at
	FROM invoices`

// GetInvoice loads an invoice with its items.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, selectInvoice+` WHERE id = $1`, id), id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Items, err = listItems(ctx, r.pool, id)
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (t *txRepo) GetClient(ctx context.Context, id int64) (customers.Client, error) {
	return t.clients.Get(ctx, id)
}

func (t *txRepo) CreateClient(ctx context.Context, in customers.NewClient) (customers.Client, error) {
	return t.clients.Create(ctx, in)
}

func (t *txRepo) HasActiveItem(ctx context.Context, diamondID int64) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM invoice_items WHERE diamond_id = $1)`, diamondID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sales: check active item: %w", err)
	}
	return exists, nil
}

func (t *txRepo) NextInvoiceNumber(ctx context.Context, at time.Time) (string, error) {
	var seq int64
	if err := t.q.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return "", fmt.Errorf("sales: next invoice number: %w", err)
	}
	return formatInvoiceNumber(at, seq), nil
}

func formatInvoiceNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%06d", at.Format("200601"), seq)
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv *Invoice) error {
	err := t.q.QueryRow(ctx, `INSERT INTO invoices (
			number, client_id, currency, exchange_rate, subtotal_usd, subtotal_client,
			cgst_amount, sgst_amount, gst_number, grand_total_client, grand_total_usd,
			paid_amount, balance_due, payment_status, due_date, payment_history
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, '[]'::jsonb)
		RETURNING id, created_at, updated_at`,
		inv.Number, inv.ClientID, inv.Currency, inv.ExchangeRate, inv.SubtotalUSD, inv.SubtotalClient,
		inv.CGSTAmount, inv.SGSTAmount, inv.GSTNumber, inv.GrandTotalClient, inv.GrandTotalUSD,
		inv.PaidAmount, inv.BalanceDue, string(inv.PaymentStatus), inv.DueDate,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sales: insert invoice: %w", err)
	}
	return nil
}

func (t *txRepo) InsertItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error {
	for i := range items {
		item := &items[i]
		item.InvoiceID = invoiceID
		err := t.q.QueryRow(ctx, `INSERT INTO invoice_items (
				invoice_id, diamond_id, line_no, quantity, sale_price_usd, cost_usd,
				commission, profit, billed_rate_client, billed_amount_client
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
			invoiceID, item.DiamondID, item.LineNo, item.Quantity, item.SalePriceUSD, item.CostUSD,
			item.Commission, item.Profit, item.BilledRateClient, item.BilledAmountClient,
		).Scan(&item.ID)
		if err != nil {
			if db.IsUniqueViolation(err) && db.ConstraintName(err) == activeDiamondConstraint {
				return fmt.Errorf("%w: diamond %d", ErrAlreadyInvoiced, item.DiamondID)
			}
			return fmt.Errorf("sales: insert item: %w", err)
		}
	}
	return nil
}

func (t *txRepo) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(t.q.QueryRow(ctx, selectInvoice+` WHERE id = $1 FOR UPDATE`, id), id)
}

func (t *txRepo) ListItems(ctx context.Context, invoiceID int64) ([]InvoiceItem, error) {
	return listItems(ctx, t.q, invoiceID)
}

func (t *txRepo) DeleteInvoice(ctx context.Context, id int64) error {
	if _, err := t.q.Exec(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, id); err != nil {
		return fmt.Errorf("sales: delete items: %w", err)
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("sales: delete invoice: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrInvoiceNotFound, id)
	}
	return nil
}

func listItems(ctx context.Context, q db.DBTX, invoiceID int64) ([]InvoiceItem, error) {
	rows, err := q.Query(ctx, `SELECT id, invoice_id, diamond_id, line_no, quantity, sale_price_usd, cost_usd,
		commission, profit, billed_rate_client, billed_amount_client
		FROM invoice_items WHERE invoice_id = $1 ORDER BY line_no`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("sales: list items: %w", err)
	}
	defer rows.Close()

	items := []InvoiceItem{}
	for rows.Next() {
		var it InvoiceItem
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.DiamondID, &it.LineNo, &it.Quantity, &it.SalePriceUSD, &it.CostUSD,
			&it.Commission, &it.Profit, &it.BilledRateClient, &it.BilledAmountClient); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanInvoice(row pgx.Row, id int64) (Invoice, error) {
	var inv Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.Number, &inv.ClientID, &inv.Currency, &inv.ExchangeRate, &inv.SubtotalUSD, &inv.SubtotalClient,
		&inv.CGSTAmount, &inv.SGSTAmount, &inv.GSTNumber, &inv.GrandTotalClient, &inv.GrandTotalUSD, &inv.PaidAmount,
		&inv.BalanceDue, &status, &inv.DueDate, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("%w %d", ErrInvoiceNotFound, id)
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("sales: scan invoice: %w", err)
	}
	inv.PaymentStatus = ar.Status(status)
	return inv, nil
}
