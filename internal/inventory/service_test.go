package inventory

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/gemledger/gemledger/internal/shared"
)

type memoryRepo struct {
	diamonds map[int64]Diamond
}

type memoryTx struct {
	repo    *memoryRepo
	pending map[int64]Diamond
}

func newMemoryRepo(ds ...Diamond) *memoryRepo {
	repo := &memoryRepo{diamonds: make(map[int64]Diamond)}
	for _, d := range ds {
		repo.diamonds[d.ID] = d
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, pending: make(map[int64]Diamond)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for id, d := range tx.pending {
		r.diamonds[id] = d
	}
	return nil
}

func (r *memoryRepo) GetDiamond(ctx context.Context, id int64) (Diamond, error) {
	d, ok := r.diamonds[id]
	if !ok {
		return Diamond{}, fmt.Errorf("%w %d", ErrDiamondNotFound, id)
	}
	return d, nil
}

func (tx *memoryTx) GetDiamondForUpdate(ctx context.Context, id int64) (Diamond, error) {
	if d, ok := tx.pending[id]; ok {
		return d, nil
	}
	return tx.repo.GetDiamond(ctx, id)
}

func (tx *memoryTx) UpdateStock(ctx context.Context, d Diamond) error {
	tx.pending[d.ID] = d
	return nil
}

func (tx *memoryTx) ListOutstandingBySellerForUpdate(ctx context.Context, sellerID int64) ([]Diamond, error) {
	return nil, nil
}

func (tx *memoryTx) UpdateDebt(ctx context.Context, d Diamond) error {
	tx.pending[d.ID] = d
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReserveAndRelease(t *testing.T) {
	repo := newMemoryRepo(Diamond{ID: 1, Quantity: 1, Status: StatusInStock})
	audit := &recordingAudit{}
	svc := NewService(repo, audit, discardLogger())
	ctx := context.Background()

	d, err := svc.Reserve(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StatusInCart, d.Status)
	require.Equal(t, StatusInCart, repo.diamonds[1].Status)

	d, err = svc.Release(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, StatusInStock, d.Status)
	require.Len(t, audit.logs, 2)
	require.Equal(t, "inventory:diamond.release", audit.logs[1].Action)
}

func TestReserveSoldDiamondFails(t *testing.T) {
	repo := newMemoryRepo(Diamond{ID: 1, Quantity: 0, Status: StatusSold})
	svc := NewService(repo, nil, discardLogger())

	_, err := svc.Reserve(context.Background(), 1)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.Equal(t, StatusSold, repo.diamonds[1].Status)
}

func TestReleaseRequiresCart(t *testing.T) {
	repo := newMemoryRepo(Diamond{ID: 1, Quantity: 1, Status: StatusInStock})
	svc := NewService(repo, nil, discardLogger())

	_, err := svc.Release(context.Background(), 1)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReserveMissingDiamond(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, discardLogger())
	_, err := svc.Reserve(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHandlerRoutes(t *testing.T) {
	repo := newMemoryRepo(Diamond{ID: 5, StockNo: "GL-5", Quantity: 1, Status: StatusInStock})
	h := NewHandler(discardLogger(), NewService(repo, nil, discardLogger()))
	r := chi.NewRouter()
	r.Route("/diamonds", h.MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/diamonds/5", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"stock_no":"GL-5"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/diamonds/5/reserve", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"in_cart"`)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/diamonds/5/reserve", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/diamonds/404", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/diamonds/abc", nil))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
