package rap

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gemledger/gemledger/internal/platform/httpx"
)

// PriceService is the behaviour the HTTP layer needs.
type PriceService interface {
	Calculate(ctx context.Context, p Params) (Quote, error)
	Invalidate(ctx context.Context) error
}

// Handler exposes rap pricing.
type Handler struct {
	logger  *slog.Logger
	service PriceService
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service PriceService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes on a /rap router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/calculate", h.calculate)
	r.Post("/cache/invalidate", h.invalidate)
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	var p Params
	if err := httpx.DecodeJSON(r, &p); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Calculate(r.Context(), p)
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("rap calculate", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) invalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Invalidate(r.Context()); err != nil {
		h.logger.Error("rap invalidate", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
