package sales

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/gemledger/gemledger/internal/inventory"
	"github.com/gemledger/gemledger/internal/sales/customers"
)

type invoiceHandlerSuite struct {
	suite.Suite
	repo   *memoryRepo
	router http.Handler
}

func TestInvoiceHandlerSuite(t *testing.T) {
	suite.Run(t, new(invoiceHandlerSuite))
}

func (s *invoiceHandlerSuite) SetupTest() {
	s.repo = newMemoryRepo()
	s.repo.clients[1] = customers.Client{ID: 1, Name: "Client", Country: "India", Currency: "INR"}
	s.repo.addDiamond(inventory.Diamond{ID: 1, StockNo: "GL-1", CostPrice: 1000, DiscountPct: 10, Quantity: 1})
	s.repo.addDiamond(inventory.Diamond{ID: 2, StockNo: "GL-2", CostPrice: 500, Quantity: 2})
	svc, _ := newTestService(s.repo)
	h := NewHandler(discardLogger(), svc, "/api/v1/invoices")
	r := chi.NewRouter()
	r.Route("/invoices", h.MountRoutes)
	s.router = r
}

func (s *invoiceHandlerSuite) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func (s *invoiceHandlerSuite) TestCreateGetDelete() {
	rr := s.do(http.MethodPost, "/invoices/", `{"client_id":1,"exchange_rate":85,"due_days":15,"items":[{"diamond_id":1,"quantity":1,"sale_price":1200}]}`)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())

	var inv Invoice
	s.Require().NoError(json.NewDecoder(rr.Body).Decode(&inv))
	s.Equal("/api/v1/invoices/"+itoa(inv.ID), rr.Header().Get("Location"))
	s.Equal("INR", inv.Currency)
	s.Equal(102000.0, inv.SubtotalClient)
	s.Equal(765.0, inv.CGSTAmount)
	s.Equal(300.0, inv.Items[0].Profit)

	rr = s.do(http.MethodGet, "/invoices/"+itoa(inv.ID), "")
	s.Require().Equal(http.StatusOK, rr.Code)
	s.Contains(rr.Body.String(), `"payment_status":"Pending"`)

	rr = s.do(http.MethodDelete, "/invoices/"+itoa(inv.ID), "")
	s.Require().Equal(http.StatusNoContent, rr.Code)
	s.Equal(1, s.repo.diamonds[1].Quantity)

	rr = s.do(http.MethodGet, "/invoices/"+itoa(inv.ID), "")
	s.Equal(http.StatusNotFound, rr.Code)
}

func (s *invoiceHandlerSuite) TestCreateErrors() {
	cases := map[string]struct {
		body   string
		status int
	}{
		"empty items":   {`{"client_id":1,"items":[]}`, http.StatusBadRequest},
		"unknown field": {`{"client_id":1,"items":[{"diamond_id":1,"quantity":1,"sale_price":1}],"foo":1}`, http.StatusBadRequest},
		"missing stone": {`{"client_id":1,"items":[{"diamond_id":99,"quantity":1,"sale_price":1}]}`, http.StatusNotFound},
		"oversell":      {`{"client_id":1,"items":[{"diamond_id":2,"quantity":3,"sale_price":1}]}`, http.StatusConflict},
	}
	for name, tc := range cases {
		rr := s.do(http.MethodPost, "/invoices/", tc.body)
		s.Equal(tc.status, rr.Code, name)
		s.Equal("application/problem+json", rr.Header().Get("Content-Type"), name)
	}
	s.Equal(2, s.repo.diamonds[2].Quantity)
}

func (s *invoiceHandlerSuite) TestIdempotencyKeyHeader() {
	body := `{"client_id":1,"items":[{"diamond_id":2,"quantity":1,"sale_price":700}]}`
	rr := s.do(http.MethodPost, "/invoices/", body, "Idempotency-Key", "k-1")
	s.Require().Equal(http.StatusCreated, rr.Code)

	rr = s.do(http.MethodPost, "/invoices/", body, "Idempotency-Key", "k-1")
	s.Equal(http.StatusConflict, rr.Code)
	s.Equal(1, s.repo.diamonds[2].Quantity)
}

func (s *invoiceHandlerSuite) TestBulkDelete() {
	for _, id := range []string{"1", "2"} {
		rr := s.do(http.MethodPost, "/invoices/", `{"client_id":1,"items":[{"diamond_id":`+id+`,"quantity":1,"sale_price":900}]}`)
		s.Require().Equal(http.StatusCreated, rr.Code)
	}
	ids := make([]string, 0, len(s.repo.invoices))
	for id := range s.repo.invoices {
		ids = append(ids, itoa(id))
	}

	rr := s.do(http.MethodPost, "/invoices/bulk-delete", `{"ids":[`+strings.Join(ids, ",")+`]}`)
	s.Require().Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"count":2}`, rr.Body.String())
	s.Empty(s.repo.invoices)

	rr = s.do(http.MethodPost, "/invoices/bulk-delete", `{"ids":[]}`)
	s.Equal(http.StatusBadRequest, rr.Code)
}

func TestHandlerRejectsBadID(t *testing.T) {
	svc, _ := newTestService(newMemoryRepo())
	r := chi.NewRouter()
	r.Route("/invoices", NewHandler(discardLogger(), svc, "/invoices").MountRoutes)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(method, "/invoices/abc", nil))
		require.Equal(t, http.StatusBadRequest, rr.Code, method)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
