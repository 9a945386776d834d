package audit

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

// TimelineService is the read side used by the handler.
type TimelineService interface {
	Timeline(ctx context.Context, filters TimelineFilters) (Result, error)
}

// Handler exposes the audit trail over HTTP.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
}

// NewHandler constructs the audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.timeline)
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, fieldErrs := parseFilters(r)
	if len(fieldErrs) > 0 {
		httpx.RespondError(w, fieldErrs)
		return
	}
	res, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		if httpx.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error("audit timeline", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func parseFilters(r *http.Request) (TimelineFilters, shared.FieldErrors) {
	q := r.URL.Query()
	errs := shared.FieldErrors{}
	filters := TimelineFilters{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
	}
	parseDate := func(key string) time.Time {
		raw := q.Get(key)
		if raw == "" {
			return time.Time{}
		}
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			errs[key] = "must be YYYY-MM-DD"
		}
		return t
	}
	parseInt := func(key string) int {
		raw := q.Get(key)
		if raw == "" {
			return 0
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			errs[key] = "must be a positive integer"
		}
		return v
	}
	filters.From = parseDate("from")
	if to := parseDate("to"); !to.IsZero() {
		filters.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	filters.Page = parseInt("page")
	filters.PageSize = parseInt("page_size")
	return filters, errs
}
