package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gemledger/gemledger/internal/ap"
	"github.com/gemledger/gemledger/internal/ar"
	"github.com/gemledger/gemledger/internal/audit"
	"github.com/gemledger/gemledger/internal/inventory"
	"github.com/gemledger/gemledger/internal/observability"
	"github.com/gemledger/gemledger/internal/platform/httpx"
	"github.com/gemledger/gemledger/internal/rap"
	"github.com/gemledger/gemledger/internal/sales"
	"github.com/gemledger/gemledger/jobs"
)

// APIPrefix is where the ledger API is mounted.
const APIPrefix = "/api/v1"

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	// Database is checked by /readyz when set.
	Database Pinger

	InvoiceHandler       *sales.Handler
	ReceivableHandler    *ar.Handler
	SellerPaymentHandler *ap.Handler
	RapHandler           *rap.Handler
	InventoryHandler     *inventory.Handler
	AuditHandler         *audit.Handler
	JobHandler           *jobs.Handler
}

// NewRouter constructs the chi.Router with the ledger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, http.StatusText(http.StatusNotFound), "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), "")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.Database != nil {
			if err := params.Database.Ping(r.Context()); err != nil {
				params.Logger.Warn("readiness: database", slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable), "database unavailable")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route(APIPrefix, func(r chi.Router) {
		if params.InvoiceHandler != nil || params.ReceivableHandler != nil {
			r.Route("/invoices", func(r chi.Router) {
				if params.InvoiceHandler != nil {
					params.InvoiceHandler.MountRoutes(r)
				}
				if params.ReceivableHandler != nil {
					params.ReceivableHandler.MountRoutes(r)
				}
			})
		}
		if params.ReceivableHandler != nil {
			r.Route("/receivables", params.ReceivableHandler.MountReportRoutes)
		}
		if params.SellerPaymentHandler != nil {
			r.Route("/seller-payments", params.SellerPaymentHandler.MountRoutes)
		}
		if params.RapHandler != nil {
			r.Route("/rap", params.RapHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/diamonds", params.InventoryHandler.MountRoutes)
		}
		if params.AuditHandler != nil {
			r.Route("/audit", params.AuditHandler.MountRoutes)
		}
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
