package sales

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gemledger/gemledger/internal/platform/httpx"
	"github.com/gemledger/gemledger/internal/shared"
)

// InvoiceService is the behaviour the HTTP layer needs.
type InvoiceService interface {
	CreateInvoice(ctx context.Context, in CreateInvoiceInput) (Invoice, error)
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	DeleteInvoice(ctx context.Context, id int64) error
	BulkDeleteInvoices(ctx context.Context, ids []int64) (int, error)
}

// Handler exposes invoice endpoints.
type Handler struct {
	logger  *slog.Logger
	service InvoiceService
	prefix  string
}

// NewHandler builds Handler. prefix is used for Location headers, e.g. "/api/v1/invoices".
func NewHandler(logger *slog.Logger, service InvoiceService, prefix string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, prefix: prefix}
}

// MountRoutes registers invoice routes on an /invoices router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Post("/bulk-delete", h.bulkDelete)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.delete)
}

type bulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInvoiceInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.IdempotencyKey = r.Header.Get("Idempotency-Key")
	inv, err := h.service.CreateInvoice(r.Context(), in)
	if err != nil {
		h.fail(w, "create invoice", err)
		return
	}
	httpx.Created(w, httpx.PathID(h.prefix, inv.ID), inv)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.fail(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.invoiceID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteInvoice(r.Context(), id); err != nil {
		h.fail(w, "delete invoice", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) bulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	n, err := h.service.BulkDeleteInvoices(r.Context(), req.IDs)
	if err != nil {
		h.fail(w, "bulk delete invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, BulkDeleteResult{Deleted: n})
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
