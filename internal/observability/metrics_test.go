package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/gemledger/gemledger/internal/shared"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveLedger("sales", "create_invoice", nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "gemledger_ledger_operations_total") {
		t.Fatalf("expected body to contain gemledger_ledger_operations_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	metricsBody := metricsRR.Body.String()
	if !strings.Contains(metricsBody, "http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", metricsBody)
	}
	if !strings.Contains(metricsBody, "http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", metricsBody)
	}
}

func TestObserveLedgerLabelsErrorKinds(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveLedger("ar", "add_payment", nil)
	metrics.ObserveLedger("ar", "add_payment", shared.Validationf("amount"))
	metrics.ObserveLedger("sales", "create_invoice", shared.Conflictf("already invoiced"))
	metrics.ObserveLedger("ap", "create_seller_payment", errors.New("boom"))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()

	for _, want := range []string{
		`gemledger_ledger_operations_total{component="ar",op="add_payment",result="ok"} 1`,
		`gemledger_ledger_operations_total{component="ar",op="add_payment",result="invalid"} 1`,
		`gemledger_ledger_operations_total{component="sales",op="create_invoice",result="conflict"} 1`,
		`gemledger_ledger_operations_total{component="ap",op="create_seller_payment",result="error"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in metrics output, got: %s", want, body)
		}
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveLedger("ar", "noop", nil)
}
