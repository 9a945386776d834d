package ap

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

// PaymentService is the behaviour the HTTP layer needs.
type PaymentService interface {
	CreateSellerPayment(ctx context.Context, in CreateSellerPaymentInput) (PaymentResult, error)
	GetSellerPayment(ctx context.Context, id int64) (PaymentResult, error)
}

// Handler manages seller payment endpoints.
type Handler struct {
	logger  *slog.Logger
	service PaymentService
	prefix  string
}

// NewHandler builds Handler instance. prefix is used for Location headers.
func NewHandler(logger *slog.Logger, service PaymentService, prefix string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, prefix: prefix}
}

// MountRoutes registers routes on a /seller-payments router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
}

type paymentRequest struct {
	SellerID    int64             `json:"seller_id"`
	Amount      float64           `json:"amount"`
	Date        string            `json:"date"`
	Mode        string            `json:"mode"`
	Note        string            `json:"note"`
	Allocations []AllocationInput `json:"allocations"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := CreateSellerPaymentInput{
		SellerID:       req.SellerID,
		Amount:         req.Amount,
		Mode:           req.Mode,
		Note:           req.Note,
		Allocations:    req.Allocations,
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
	res, err := h.service.CreateSellerPayment(r.Context(), in)
	if err != nil {
		h.fail(w, "create seller payment", err)
		return
	}
	httpx.Created(w, httpx.PathID(h.prefix, res.Payment.ID), res)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Validationf("invalid seller payment id"))
		return
	}
	res, err := h.service.GetSellerPayment(r.Context(), id)
	if err != nil {
		h.fail(w, "get seller payment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if httpx.StatusFor(err) >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
