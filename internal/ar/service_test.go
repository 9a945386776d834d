package ar

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gemledger/gemledger/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	ledgers map[int64]Ledger
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(ls ...Ledger) *memoryRepo {
	repo := &memoryRepo{ledgers: make(map[int64]Ledger)}
	for _, l := range ls {
		repo.ledgers[l.InvoiceID] = l
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]Ledger, len(r.ledgers))
	for id, l := range r.ledgers {
		l.History = append([]PaymentEntry(nil), l.History...)
		snapshot[id] = l
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.ledgers = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, invoiceID int64) (Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[invoiceID]
	if !ok {
		return Ledger{}, ErrInvoiceNotFound
	}
	return l, nil
}

func (r *memoryRepo) ListOpen(ctx context.Context) ([]Ledger, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Ledger
	for _, l := range r.ledgers {
		if l.BalanceDue > 0 && l.Status != StatusPaid && l.Status != StatusCancelled {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memoryRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, l := range r.ledgers {
		if l.IsOverdue(asOf) {
			l.Status = StatusOverdue
			r.ledgers[id] = l
			n++
		}
	}
	return n, nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, invoiceID int64) (Ledger, error) {
	l, ok := t.repo.ledgers[invoiceID]
	if !ok {
		return Ledger{}, ErrInvoiceNotFound
	}
	l.History = append([]PaymentEntry(nil), l.History...)
	return l, nil
}

func (t *memoryTx) Save(ctx context.Context, l Ledger) error {
	t.repo.ledgers[l.InvoiceID] = l
	return nil
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[module+":"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+":"+key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+":"+key)
	return nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) ObserveLedger(component, op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.counts[component+"."+op+"."+outcome]++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openInvoice(id int64, total float64) Ledger {
	return Ledger{
		InvoiceID:  id,
		Number:     "INV-202401-000001",
		Currency:   "USD",
		GrandTotal: total,
		BalanceDue: total,
		Status:     StatusPending,
		DueDate:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		History:    []PaymentEntry{},
	}
}

func TestAddPaymentPartialThenPaid(t *testing.T) {
	repo := newMemoryRepo(openInvoice(1, 1000))
	metrics := &countingMetrics{}
	svc := NewService(repo, nil, nil, metrics, discardLogger())
	ctx := context.Background()

	res, err := svc.AddPayment(ctx, 1, PaymentInput{Amount: 400, Mode: "bank_transfer"})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, res.Status)
	require.Equal(t, 600.0, res.BalanceDue)
	require.Equal(t, 400.0, res.PaidAmount)
	require.Len(t, res.History, 1)

	res, err = svc.AddPayment(ctx, 1, PaymentInput{Amount: 600, Mode: "cash", Note: "final"})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, res.Status)
	require.Zero(t, res.BalanceDue)
	require.Len(t, res.History, 2)
	require.Equal(t, "final", res.History[1].Note)
	require.NotEmpty(t, res.History[0].ID)
	require.NotEqual(t, res.History[0].ID, res.History[1].ID)
	require.Equal(t, 2, metrics.counts["ar.add_payment.ok"])
}

func TestAddPaymentOverpaymentLeavesCredit(t *testing.T) {
	repo := newMemoryRepo(openInvoice(1, 100))
	svc := NewService(repo, nil, nil, nil, discardLogger())

	res, err := svc.AddPayment(context.Background(), 1, PaymentInput{Amount: 150, Mode: "cash"})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, res.Status)
	require.Equal(t, -50.0, res.BalanceDue)
}

func TestAddPaymentValidation(t *testing.T) {
	repo := newMemoryRepo(openInvoice(1, 100))
	svc := NewService(repo, nil, nil, nil, discardLogger())
	ctx := context.Background()

	_, err := svc.AddPayment(ctx, 1, PaymentInput{Amount: 0, Mode: "cash"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.AddPayment(ctx, 1, PaymentInput{Amount: -5, Mode: "cash"})
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = svc.AddPayment(ctx, 1, PaymentInput{Amount: 5})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.AddPayment(ctx, 42, PaymentInput{Amount: 5, Mode: "cash"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	l, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, l.History)
	require.Equal(t, 100.0, l.BalanceDue)
}

func TestAddPaymentIdempotencyKey(t *testing.T) {
	repo := newMemoryRepo(openInvoice(1, 100))
	idem := &memoryIdempotency{}
	svc := NewService(repo, nil, idem, nil, discardLogger())
	ctx := context.Background()

	_, err := svc.AddPayment(ctx, 1, PaymentInput{Amount: 10, Mode: "cash", IdempotencyKey: "k1"})
	require.NoError(t, err)
	_, err = svc.AddPayment(ctx, 1, PaymentInput{Amount: 10, Mode: "cash", IdempotencyKey: "k1"})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	_, err = svc.AddPayment(ctx, 99, PaymentInput{Amount: 10, Mode: "cash", IdempotencyKey: "k2"})
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.False(t, idem.keys[shared.IdempotencyInvoicePayment+":k2"])

	l, _ := svc.Get(ctx, 1)
	require.Len(t, l.History, 1)
}

func TestConcurrentPaymentsAreSerialised(t *testing.T) {
	repo := newMemoryRepo(openInvoice(1, 200))
	svc := NewService(repo, nil, nil, nil, discardLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddPayment(ctx, 1, PaymentInput{Amount: 10, Mode: "cash"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	l, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.Len(t, l.History, 20)
	require.Equal(t, 200.0, l.PaidAmount)
	require.Zero(t, l.BalanceDue)
	require.Equal(t, StatusPaid, l.Status)
}

func TestUpdateStatusOverrides(t *testing.T) {
	repo := newMemoryRepo(openInvoice(1, 500))
	svc := NewService(repo, nil, nil, nil, discardLogger())
	ctx := context.Background()

	_, err := svc.AddPayment(ctx, 1, PaymentInput{Amount: 100, Mode: "cash"})
	require.NoError(t, err)

	l, err := svc.UpdateStatus(ctx, 1, "Paid")
	require.NoError(t, err)
	require.Equal(t, 500.0, l.PaidAmount)
	require.Zero(t, l.BalanceDue)
	require.Len(t, l.History, 1)

	l, err = svc.UpdateStatus(ctx, 1, "Pending")
	require.NoError(t, err)
	require.Zero(t, l.PaidAmount)
	require.Equal(t, 500.0, l.BalanceDue)
	require.Len(t, l.History, 1)

	l, err = svc.UpdateStatus(ctx, 1, "Cancelled")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, l.Status)
	require.Equal(t, 500.0, l.BalanceDue)

	_, err = svc.UpdateStatus(ctx, 1, "paid")
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.UpdateStatus(ctx, 7, "Paid")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMarkOverdueAndAging(t *testing.T) {
	due := openInvoice(1, 300)
	paid := openInvoice(2, 100)
	paid.Status = StatusPaid
	paid.PaidAmount = 100
	paid.BalanceDue = 0
	future := openInvoice(3, 50)
	future.DueDate = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	repo := newMemoryRepo(due, paid, future)
	svc := NewService(repo, nil, nil, nil, discardLogger())
	ctx := context.Background()
	asOf := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	n, err := svc.MarkOverdue(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, StatusOverdue, repo.ledgers[1].Status)
	require.Equal(t, StatusPaid, repo.ledgers[2].Status)
	require.Equal(t, StatusPending, repo.ledgers[3].Status)

	buckets, err := svc.Aging(ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, 300.0, buckets["USD"].Bucket60)
	require.Equal(t, 50.0, buckets["USD"].Current)
}

func TestAddPaymentSnapsSubCentBalance(t *testing.T) {
	for _, amount := range []float64{100.001, 100.004, 100.005, 100.006, 100.009, 100.01, 100.014} {
		t.Run(strconv.FormatFloat(amount, 'f', -1, 64), func(t *testing.T) {
			repo := newMemoryRepo(openInvoice(1, 100.01))
			svc := NewService(repo, nil, nil, nil, discardLogger())

			res, err := svc.AddPayment(context.Background(), 1, PaymentInput{Amount: amount, Mode: "wire"})
			require.NoError(t, err)
			require.Equal(t, StatusPaid, res.Status)
			require.Zero(t, res.BalanceDue)
			require.Equal(t, 100.01, res.PaidAmount)
			require.Equal(t, 100.01, repo.ledgers[1].PaidAmount)
		})
	}
}

func TestAddPaymentLeavesCentBalanceOpen(t *testing.T) {
	repo := newMemoryRepo(openInvoice(1, 100.01))
	svc := NewService(repo, nil, nil, nil, discardLogger())
	ctx := context.Background()

	res, err := svc.AddPayment(ctx, 1, PaymentInput{Amount: 50, Mode: "wire"})
	require.NoError(t, err)
	res, err = svc.AddPayment(ctx, 1, PaymentInput{Amount: 49.99, Mode: "wire"})
	require.NoError(t, err)
	require.Equal(t, StatusPartial, res.Status)
	require.Equal(t, 0.02, res.BalanceDue)
	require.Equal(t, 99.99, res.PaidAmount)

	res, err = svc.AddPayment(ctx, 1, PaymentInput{Amount: 0.015, Mode: "wire"})
	require.NoError(t, err)
	require.Equal(t, StatusPaid, res.Status)
	require.Zero(t, res.BalanceDue)
}

func TestBalanceHelper(t *testing.T) {
	require.Zero(t, Balance(100.01, 100.004))
	require.Equal(t, 0.01, Balance(100.01, 100))
	require.Equal(t, -20.0, Balance(100, 120))
}

func TestApplyPaymentKeepsStatusWhenBalanceNotReduced(t *testing.T) {
	l := Ledger{GrandTotal: 100, BalanceDue: 100, Status: StatusOverdue}
	l.ApplyPayment(PaymentEntry{Amount: 0})
	require.Equal(t, StatusOverdue, l.Status)
	require.Len(t, l.History, 1)
}
