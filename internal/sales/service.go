package sales

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gemledger/gemledger/internal/ar"
	"github.com/gemledger/gemledger/internal/inventory"
	"github.com/gemledger/gemledger/internal/money"
	"github.com/gemledger/gemledger/internal/sales/customers"
	"github.com/gemledger/gemledger/internal/shared"
)

// RepositoryPort defines data access methods for invoices.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against replayed requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// MetricsPort counts ledger operations.
type MetricsPort interface {
	ObserveLedger(component, op string, err error)
}

// Service creates and removes invoices together with the stock they consume.
type Service struct {
	repo    RepositoryPort
	tax     money.TaxStrategy
	audit   AuditPort
	idem    IdempotencyPort
	metrics MetricsPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the invoice service. A nil tax strategy charges no tax.
func NewService(repo RepositoryPort, tax money.TaxStrategy, audit AuditPort, idem IdempotencyPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if tax == nil {
		tax = money.NoTax{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tax: tax, audit: audit, idem: idem, metrics: metrics, logger: logger, now: time.Now}
}

// GetInvoice returns an invoice with its items.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	if id <= 0 {
		return Invoice{}, shared.Validationf("invoice id required")
	}
	return s.repo.GetInvoice(ctx, id)
}

// CreateInvoice sells the requested diamonds to one client. Stock, invoice and
// items are written in one transaction; any failing line leaves nothing behind.
func (s *Service) CreateInvoice(ctx context.Context, in CreateInvoiceInput) (inv Invoice, err error) {
	defer func() { s.observe("create_invoice", err) }()

	if err := validateCreate(in); err != nil {
		return Invoice{}, err
	}
	conv, err := money.NewConverter(in.ExchangeRate)
	if err != nil {
		return Invoice{}, err
	}

	if in.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, in.IdempotencyKey, shared.IdempotencyInvoiceCreate); err != nil {
			return Invoice{}, err
		}
		defer func() {
			if err != nil {
				_ = s.idem.Delete(ctx, in.IdempotencyKey, shared.IdempotencyInvoiceCreate)
			}
		}()
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := s.createInTx(ctx, tx, in, conv)
		if err != nil {
			return err
		}
		inv = created
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}

	s.logger.Info("invoice created",
		slog.Int64("invoice_id", inv.ID),
		slog.String("number", inv.Number),
		slog.Int("items", len(inv.Items)),
		slog.String("currency", inv.Currency),
		slog.Float64("grand_total", inv.GrandTotalClient))
	s.record(ctx, "sales:invoice.create", inv.ID, map[string]any{
		"number":      inv.Number,
		"client_id":   inv.ClientID,
		"grand_total": inv.GrandTotalClient,
		"currency":    inv.Currency,
	})
	return inv, nil
}

func validateCreate(in CreateInvoiceInput) error {
	if err := shared.Validate(in); err != nil {
		return err
	}
	if in.ClientID == 0 {
		if in.Client == nil {
			return shared.FieldErrors{"client_id": "client_id or client is required"}
		}
		if err := shared.Validate(in.Client); err != nil {
			return err
		}
	}
	seen := make(map[int64]struct{}, len(in.Items))
	for i, line := range in.Items {
		if _, ok := seen[line.DiamondID]; ok {
			return shared.FieldErrors{"items[" + strconv.Itoa(i) + "].diamond_id": "duplicate diamond"}
		}
		seen[line.DiamondID] = struct{}{}
	}
	return nil
}

func (s *Service) createInTx(ctx context.Context, tx TxRepository, in CreateInvoiceInput, conv money.Converter) (Invoice, error) {
	client, err := s.resolveClient(ctx, tx, in)
	if err != nil {
		return Invoice{}, err
	}
	currency := in.Currency
	if currency == "" {
		currency = client.Currency
	}
	currency, err = money.NormalizeCurrency(currency)
	if err != nil {
		return Invoice{}, err
	}

	// Rows are locked in id order so concurrent invoices sharing diamonds
	// queue instead of deadlocking.
	ids := make([]int64, 0, len(in.Items))
	for _, line := range in.Items {
		ids = append(ids, line.DiamondID)
	}
	slices.Sort(ids)
	locked := make(map[int64]inventory.Diamond, len(ids))
	for _, id := range ids {
		d, err := tx.GetDiamondForUpdate(ctx, id)
		if err != nil {
			return Invoice{}, err
		}
		active, err := tx.HasActiveItem(ctx, id)
		if err != nil {
			return Invoice{}, err
		}
		if active {
			return Invoice{}, fmt.Errorf("%w: diamond %d", ErrAlreadyInvoiced, id)
		}
		locked[id] = d
	}

	subtotalUSD := decimal.Zero
	items := make([]InvoiceItem, 0, len(in.Items))
	for i, line := range in.Items {
		d := locked[line.DiamondID]
		totals := computeLine(d, line.Quantity, line.SalePrice, conv)
		if err := inventory.Sell(&d, line.Quantity); err != nil {
			return Invoice{}, err
		}
		if err := tx.UpdateStock(ctx, d); err != nil {
			return Invoice{}, err
		}
		locked[d.ID] = d
		subtotalUSD = subtotalUSD.Add(decimal.NewFromFloat(line.SalePrice).Mul(decimal.NewFromInt(int64(line.Quantity))))
		items = append(items, InvoiceItem{
			DiamondID:          line.DiamondID,
			LineNo:             i + 1,
			Quantity:           line.Quantity,
			SalePriceUSD:       money.Round2(line.SalePrice),
			CostUSD:            totals.costUSD,
			Commission:         money.Round2(line.Commission),
			Profit:             totals.profit,
			BilledRateClient:   totals.billedRate,
			BilledAmountClient: totals.billedAmount,
		})
	}

	now := s.now()
	inv := Invoice{
		ClientID:      client.ID,
		Currency:      currency,
		ExchangeRate:  conv.Rate(),
		SubtotalUSD:   subtotalUSD.Round(2).InexactFloat64(),
		PaymentStatus: ar.StatusPending,
		DueDate:       dateOnly(now.AddDate(0, 0, in.DueDays)),
	}
	inv.SubtotalClient = conv.ToClient(subtotalUSD.InexactFloat64())
	tax := s.tax.Compute(inv.SubtotalClient, currency, client.Country)
	inv.CGSTAmount = tax.CGST
	inv.SGSTAmount = tax.SGST
	inv.GSTNumber = tax.GSTNumber
	inv.GrandTotalClient = money.Sum(inv.SubtotalClient, tax.CGST, tax.SGST)
	inv.GrandTotalUSD = conv.ToBase(inv.GrandTotalClient)
	inv.BalanceDue = inv.GrandTotalClient

	inv.Number, err = tx.NextInvoiceNumber(ctx, now)
	if err != nil {
		return Invoice{}, err
	}
	if err := tx.InsertInvoice(ctx, &inv); err != nil {
		return Invoice{}, err
	}
	if err := tx.InsertItems(ctx, inv.ID, items); err != nil {
		return Invoice{}, err
	}
	inv.Items = items
	return inv, nil
}

func (s *Service) resolveClient(ctx context.Context, tx TxRepository, in CreateInvoiceInput) (customers.Client, error) {
	if in.ClientID > 0 {
		return tx.GetClient(ctx, in.ClientID)
	}
	return tx.CreateClient(ctx, *in.Client)
}

// DeleteInvoice removes an invoice and returns its quantities to stock.
func (s *Service) DeleteInvoice(ctx context.Context, id int64) (err error) {
	defer func() { s.observe("delete_invoice", err) }()

	if id <= 0 {
		return shared.Validationf("invoice id required")
	}
	var restored int
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := deleteInTx(ctx, tx, id)
		restored = n
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Info("invoice deleted", slog.Int64("invoice_id", id), slog.Int("items_restored", restored))
	s.record(ctx, "sales:invoice.delete", id, map[string]any{"items_restored": restored})
	return nil
}

// BulkDeleteInvoices deletes every listed invoice in one transaction. A
// missing id or any other failure aborts the whole batch.
func (s *Service) BulkDeleteInvoices(ctx context.Context, ids []int64) (count int, err error) {
	defer func() { s.observe("bulk_delete_invoices", err) }()

	if len(ids) == 0 {
		return 0, shared.FieldErrors{"ids": "at least one invoice id is required"}
	}
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if ids[0] <= 0 {
		return 0, shared.FieldErrors{"ids": "invoice ids must be positive"}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, id := range ids {
			if _, err := deleteInTx(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("invoices bulk deleted", slog.Int("count", len(ids)))
	for _, id := range ids {
		s.record(ctx, "sales:invoice.delete", id, map[string]any{"bulk": true})
	}
	return len(ids), nil
}

func deleteInTx(ctx context.Context, tx TxRepository, id int64) (int, error) {
	if _, err := tx.GetInvoiceForUpdate(ctx, id); err != nil {
		return 0, err
	}
	items, err := tx.ListItems(ctx, id)
	if err != nil {
		return 0, err
	}
	byDiamond := slices.Clone(items)
	slices.SortFunc(byDiamond, func(a, b InvoiceItem) int {
		switch {
		case a.DiamondID < b.DiamondID:
			return -1
		case a.DiamondID > b.DiamondID:
			return 1
		}
		return 0
	})
	for _, item := range byDiamond {
		d, err := tx.GetDiamondForUpdate(ctx, item.DiamondID)
		if err != nil {
			return 0, err
		}
		if err := inventory.Restore(&d, item.Quantity); err != nil {
			return 0, err
		}
		if err := tx.UpdateStock(ctx, d); err != nil {
			return 0, err
		}
	}
	if err := tx.DeleteInvoice(ctx, id); err != nil {
		return 0, err
	}
	return len(items), nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) record(ctx context.Context, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "invoice", EntityID: strconv.FormatInt(invoiceID, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit invoice", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) observe(op string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveLedger("sales", op, err)
	}
}
