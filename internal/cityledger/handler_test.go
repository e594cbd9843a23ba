package cityledger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-folio/internal/folio"
)

func newTestRouter(t *testing.T, repo *memoryRepo) http.Handler {
	t.Helper()
	svc, _ := newTestService(t, repo)
	r := chi.NewRouter()
	r.Route("/city-ledger", NewHandler(svc, nil).MountRoutes)
	return r
}

func TestHandlerStatement(t *testing.T) {
	repo := &memoryRepo{rows: []Row{
		txn(1, folio.TxCharge, "120", nil),
		txn(2, folio.TxPayment, "-20", methodPtr(4)),
	}}
	router := newTestRouter(t, repo)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/city-ledger/9/statement?from=2026-03-01&to=2026-03-31&hotel_id=1&date_basis=posting&per_page=1", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		Rows []struct {
			FolioNumber string `json:"folio_number"`
		} `json:"rows"`
		Totals struct {
			Balance string `json:"balance"`
		} `json:"totals"`
		Meta struct {
			Total int `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
	require.Equal(t, "F00000001", body.Rows[0].FolioNumber)
	require.Equal(t, "100", body.Totals.Balance)
	require.Equal(t, 2, body.Meta.Total)
	require.Equal(t, int64(9), repo.lastQuery.CompanyAccountID)
	require.True(t, repo.lastQuery.UsePostingDate)
	require.Equal(t, int64(1), *repo.lastQuery.HotelID)
}

func TestHandlerTotals(t *testing.T) {
	router := newTestRouter(t, &memoryRepo{rows: []Row{
		txn(1, folio.TxCharge, "500", nil),
		txn(2, folio.TxPayment, "-200", methodPtr(4)),
	}})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/city-ledger/9/totals?payment_method_id=4", nil))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var totals map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &totals))
	require.Equal(t, "300", totals["balance"])
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	router := newTestRouter(t, &memoryRepo{})
	cases := map[string]int{
		"/city-ledger/abc/statement":                             http.StatusBadRequest,
		"/city-ledger/9/statement?from=03-01-2026":               http.StatusBadRequest,
		"/city-ledger/9/statement?from=2026-03-05&to=2026-03-01": http.StatusBadRequest,
		"/city-ledger/9/totals":                                  http.StatusBadRequest,
		"/city-ledger/9/totals?payment_method_id=5":              http.StatusBadRequest,
		"/city-ledger/9/totals?payment_method_id=99":             http.StatusNotFound,
	}
	for path, want := range cases {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, want, rr.Code, path)
	}
}
