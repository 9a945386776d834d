package ar

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gemledger/gemledger/internal/shared"
)

// RepositoryPort defines data access methods for receivables.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, invoiceID int64) (Ledger, error)
	ListOpen(ctx context.Context) ([]Ledger, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
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

// Service applies client payments to invoices.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	idem    IdempotencyPort
	metrics MetricsPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService builds Service instance. audit, idem and metrics may be nil.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, metrics MetricsPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, idem: idem, metrics: metrics, logger: logger, now: time.Now}
}

// Get returns the receivable view of an invoice.
func (s *Service) Get(ctx context.Context, invoiceID int64) (Ledger, error) {
	if invoiceID <= 0 {
		return Ledger{}, shared.Validationf("invoice id required")
	}
	return s.repo.Get(ctx, invoiceID)
}

// AddPayment appends a payment to the invoice history and re-derives its balance
// and status atomically.
func (s *Service) AddPayment(ctx context.Context, invoiceID int64, in PaymentInput) (res PaymentResult, err error) {
	defer func() { s.observe("add_payment", err) }()

	if invoiceID <= 0 {
		return PaymentResult{}, shared.Validationf("invoice id required")
	}
	if in.Amount <= 0 {
		return PaymentResult{}, ErrInvalidAmount
	}
	if err := shared.Validate(in); err != nil {
		return PaymentResult{}, err
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}

	if in.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, in.IdempotencyKey, shared.IdempotencyInvoicePayment); err != nil {
			return PaymentResult{}, err
		}
		defer func() {
			if err != nil {
				_ = s.idem.Delete(ctx, in.IdempotencyKey, shared.IdempotencyInvoicePayment)
			}
		}()
	}

	entry := PaymentEntry{
		ID:         uuid.NewString(),
		Date:       in.Date,
		Amount:     in.Amount,
		Mode:       in.Mode,
		Note:       in.Note,
		RecordedAt: s.now().UTC(),
	}

	var ledger Ledger
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		l, err := tx.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		l.ApplyPayment(entry)
		if err := tx.Save(ctx, l); err != nil {
			return err
		}
		ledger = l
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	s.logger.Info("invoice payment recorded",
		slog.Int64("invoice_id", invoiceID),
		slog.Float64("amount", in.Amount),
		slog.Float64("balance_due", ledger.BalanceDue),
		slog.String("status", string(ledger.Status)))
	s.record(ctx, "ar:invoice.payment", invoiceID, map[string]any{"payment_id": entry.ID, "amount": in.Amount, "mode": in.Mode})

	return PaymentResult{
		Status:     ledger.Status,
		PaidAmount: ledger.PaidAmount,
		BalanceDue: ledger.BalanceDue,
		History:    ledger.History,
	}, nil
}

// UpdateStatus overrides the payment status of an invoice.
func (s *Service) UpdateStatus(ctx context.Context, invoiceID int64, status string) (l Ledger, err error) {
	defer func() { s.observe("update_status", err) }()

	if invoiceID <= 0 {
		return Ledger{}, shared.Validationf("invoice id required")
	}
	st, err := ParseStatus(status)
	if err != nil {
		return Ledger{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		cur, err := tx.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		cur.ApplyStatus(st)
		if err := tx.Save(ctx, cur); err != nil {
			return err
		}
		l = cur
		return nil
	})
	if err != nil {
		return Ledger{}, err
	}
	s.logger.Info("invoice status updated", slog.Int64("invoice_id", invoiceID), slog.String("status", string(st)))
	s.record(ctx, "ar:invoice.status", invoiceID, map[string]any{"status": string(st)})
	return l, nil
}

// MarkOverdue relabels open invoices whose due date has passed.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	n, err := s.repo.MarkOverdue(ctx, asOf)
	s.observe("mark_overdue", err)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("invoices marked overdue", slog.Int64("count", n), slog.Time("as_of", asOf))
	}
	return n, nil
}

// Aging groups open balances by days past due.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (map[string]AgingBucket, error) {
	ledgers, err := s.repo.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	out := make(map[string]AgingBucket)
	for _, l := range ledgers {
		days := int(asOf.Sub(l.DueDate).Hours() / 24)
		bucket := out[l.Currency]
		bucket.Add(days, l.BalanceDue)
		out[l.Currency] = bucket
	}
	return out, nil
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
		s.metrics.ObserveLedger("ar", op, err)
	}
}
