package ap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gemledger/gemledger/internal/inventory"
	"github.com/gemledger/gemledger/internal/money"
	"github.com/gemledger/gemledger/internal/shared"
)

// RepositoryPort defines data access methods for seller payments.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPayment(ctx context.Context, id int64) (PaymentResult, error)
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

// Service records payments to sellers and spreads them over purchase debts.
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

// GetSellerPayment returns a payment with its allocations.
func (s *Service) GetSellerPayment(ctx context.Context, id int64) (PaymentResult, error) {
	if id <= 0 {
		return PaymentResult{}, shared.Validationf("seller payment id required")
	}
	return s.repo.GetPayment(ctx, id)
}

// CreateSellerPayment stores the payment and applies it to the seller's
// diamonds, either as requested or oldest obligation first. Whatever cannot be
// applied stays on the payment as unallocated credit.
func (s *Service) CreateSellerPayment(ctx context.Context, in CreateSellerPaymentInput) (res PaymentResult, err error) {
	defer func() { s.observe("create_seller_payment", err) }()

	if err := shared.Validate(in); err != nil {
		return PaymentResult{}, err
	}
	if err := checkExplicit(in.Amount, in.Allocations); err != nil {
		return PaymentResult{}, err
	}
	in.Amount = money.Round2(in.Amount)
	if in.Date.IsZero() {
		in.Date = s.now()
	}

	if in.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, in.IdempotencyKey, shared.IdempotencySellerPayment); err != nil {
			return PaymentResult{}, err
		}
		defer func() {
			if err != nil {
				_ = s.idem.Delete(ctx, in.IdempotencyKey, shared.IdempotencySellerPayment)
			}
		}()
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		out, err := s.createInTx(ctx, tx, in)
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}

	p := res.Payment
	s.logger.Info("seller payment recorded",
		slog.Int64("payment_id", p.ID),
		slog.Int64("seller_id", p.SellerID),
		slog.Float64("amount", p.Amount),
		slog.Int("allocations", len(res.Allocations)))
	if p.UnallocatedAmount > 0 {
		s.logger.Warn("seller payment not fully allocated",
			slog.Int64("payment_id", p.ID),
			slog.Int64("seller_id", p.SellerID),
			slog.Float64("unallocated", p.UnallocatedAmount))
	}
	s.record(ctx, p.ID, map[string]any{
		"seller_id":   p.SellerID,
		"amount":      p.Amount,
		"allocations": len(res.Allocations),
		"unallocated": p.UnallocatedAmount,
	})
	return res, nil
}

func (s *Service) createInTx(ctx context.Context, tx TxRepository, in CreateSellerPaymentInput) (PaymentResult, error) {
	if err := tx.LockSeller(ctx, in.SellerID); err != nil {
		return PaymentResult{}, err
	}
	ok, err := tx.SellerExists(ctx, in.SellerID)
	if err != nil {
		return PaymentResult{}, err
	}
	if !ok {
		return PaymentResult{}, fmt.Errorf("%w %d", ErrSellerNotFound, in.SellerID)
	}

	outstanding, err := tx.ListOutstandingBySellerForUpdate(ctx, in.SellerID)
	if err != nil {
		return PaymentResult{}, err
	}
	diamonds := make(map[int64]inventory.Diamond, len(outstanding))
	for _, d := range outstanding {
		diamonds[d.ID] = d
	}

	var plan AllocationPlan
	if len(in.Allocations) > 0 {
		plan, err = explicitPlan(ctx, tx, in, diamonds)
		if err != nil {
			return PaymentResult{}, err
		}
	} else {
		debts := make([]Debt, 0, len(outstanding))
		for _, d := range outstanding {
			debts = append(debts, Debt{DiamondID: d.ID, Due: d.Due()})
		}
		plan = Allocate(in.Amount, debts)
	}

	payment := SellerPayment{
		SellerID:          in.SellerID,
		Amount:            in.Amount,
		PaidAt:            dateOnly(in.Date),
		Mode:              in.Mode,
		Note:              in.Note,
		UnallocatedAmount: money.Round2(plan.Remaining),
	}
	if err := tx.InsertPayment(ctx, &payment); err != nil {
		return PaymentResult{}, err
	}

	allocs := make([]Allocation, 0, len(plan.Allocations))
	for _, p := range plan.Allocations {
		a := Allocation{PaymentID: payment.ID, DiamondID: p.DiamondID, Amount: p.Amount}
		if err := tx.InsertAllocation(ctx, &a); err != nil {
			return PaymentResult{}, err
		}
		d := diamonds[p.DiamondID]
		d.PaidAmount = money.Sum(d.PaidAmount, p.Amount)
		d.PaymentStatus = inventory.DebtStatusFor(d.PaidAmount, d.BuyPrice)
		if err := tx.UpdateDebt(ctx, d); err != nil {
			return PaymentResult{}, err
		}
		diamonds[d.ID] = d
		allocs = append(allocs, a)
	}
	return PaymentResult{Payment: payment, Allocations: allocs}, nil
}

// explicitPlan checks every requested allocation against the diamond it targets.
// diamonds is extended with any owned diamond that was already fully paid.
func explicitPlan(ctx context.Context, tx TxRepository, in CreateSellerPaymentInput, diamonds map[int64]inventory.Diamond) (AllocationPlan, error) {
	plan := AllocationPlan{Remaining: in.Amount}
	for _, a := range in.Allocations {
		d, ok := diamonds[a.DiamondID]
		if !ok {
			var err error
			d, err = tx.GetDiamondForUpdate(ctx, a.DiamondID)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return AllocationPlan{}, err
			}
			if err != nil || d.SellerID != in.SellerID {
				return AllocationPlan{}, fmt.Errorf("%w: diamond %d, seller %d", ErrDiamondNotOwned, a.DiamondID, in.SellerID)
			}
			diamonds[d.ID] = d
		}
		amount := money.Round2(a.Amount)
		if due := d.Due(); amount > due+money.Epsilon {
			return AllocationPlan{}, fmt.Errorf("%w: diamond %d owes %.2f, allocation %.2f", ErrOverAllocated, d.ID, due, amount)
		}
		plan.Allocations = append(plan.Allocations, Planned{DiamondID: d.ID, Amount: amount})
		plan.Remaining = money.Sub(plan.Remaining, amount)
	}
	if plan.Remaining < 0 {
		return AllocationPlan{}, fmt.Errorf("%w: allocations exceed payment %.2f", ErrOverAllocated, in.Amount)
	}
	return plan, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Service) record(ctx context.Context, paymentID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: "ap:seller_payment.create", Entity: "seller_payment", EntityID: strconv.FormatInt(paymentID, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit seller payment", slog.Any("error", err))
	}
}

func (s *Service) observe(op string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveLedger("ap", op, err)
	}
}
