package ar

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gemledger/gemledger/internal/platform/httpx"
	"github.com/gemledger/gemledger/internal/shared"
)

// LedgerService is the behaviour the HTTP layer needs.
type LedgerService interface {
	Get(ctx context.Context, invoiceID int64) (Ledger, error)
	AddPayment(ctx context.Context, invoiceID int64, in PaymentInput) (PaymentResult, error)
	UpdateStatus(ctx context.Context, invoiceID int64, status string) (Ledger, error)
	Aging(ctx context.Context, asOf time.Time) (map[string]AgingBucket, error)
}

// Handler manages receivable endpoints.
type Handler struct {
	logger  *slog.Logger
	service LedgerService
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service LedgerService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers payment routes below an /invoices router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}/payments", h.getLedger)
	r.Post("/{id}/payments", h.addPayment)
	r.Patch("/{id}/status", h.updateStatus)
}

// MountReportRoutes registers receivable reports.
func (h *Handler) MountReportRoutes(r chi.Router) {
	r.Get("/aging", h.aging)
}

type paymentRequest struct {
	Amount float64 `json:"amount"`
	Date   string  `json:"date"`
	Mode   string  `json:"mode"`
	Note   string  `json:"note"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) getLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	l, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get ledger", err)
		return
	}
	httpx.JSON(w, http.StatusOK, l)
}

func (h *Handler) addPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := PaymentInput{
		Amount:         req.Amount,
		Mode:           req.Mode,
		Note:           req.Note,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	}
	if req.Date != "" {
		date, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			httpx.RespondError(w, shared.FieldErrors{"date": "must be YYYY-MM-DD"})
			return
		}
		in.Date = date
	}
	res, err := h.service.AddPayment(r.Context(), id, in)
	if err != nil {
		h.fail(w, "add payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.service.UpdateStatus(r.Context(), id, req.Status); err != nil {
		h.fail(w, "update status", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			httpx.RespondError(w, shared.FieldErrors{"as_of": "must be YYYY-MM-DD"})
			return
		}
		asOf = parsed
	}
	buckets, err := h.service.Aging(r.Context(), asOf)
	if err != nil {
		h.fail(w, "aging", err)
		return
	}
	httpx.JSON(w, http.StatusOK, buckets)
}

func (h *Handler) invoiceID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Validationf("invalid invoice id"))
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
