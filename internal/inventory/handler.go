package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gemledger/gemledger/internal/platform/httpx"
	"github.com/gemledger/gemledger/internal/shared"
)

// StockService is the behaviour the HTTP layer needs.
type StockService interface {
	Get(ctx context.Context, id int64) (Diamond, error)
	Reserve(ctx context.Context, id int64) (Diamond, error)
	Release(ctx context.Context, id int64) (Diamond, error)
}

// Handler exposes diamond stock endpoints.
type Handler struct {
	logger  *slog.Logger
	service StockService
}

// NewHandler builds inventory HTTP handler.
func NewHandler(logger *slog.Logger, service StockService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/{id}", h.get)
	r.Post("/{id}/reserve", h.action(h.service.Reserve))
	r.Post("/{id}/release", h.action(h.service.Release))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	h.action(h.service.Get)(w, r)
}

func (h *Handler) action(fn func(context.Context, int64) (Diamond, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.Validationf("invalid diamond id"))
			return
		}
		d, err := fn(r.Context(), id)
		if err != nil {
			if httpx.StatusFor(err) >= http.StatusInternalServerError {
				h.logger.Error("diamond request", slog.Int64("diamond_id", id), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, d)
	}
}
