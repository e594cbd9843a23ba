package cityledger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-folio/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

// Reader is the read side served over HTTP.
type Reader interface {
	GetTransactions(ctx context.Context, q Query) (Statement, error)
	CalculateTotals(ctx context.Context, companyID, paymentMethodID int64, hotelID *int64) (Totals, error)
}

// Handler serves company statements.
type Handler struct {
	reader Reader
	logger *slog.Logger
}

// NewHandler constructs the city ledger HTTP handler.
func NewHandler(reader Reader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{reader: reader, logger: logger}
}

// MountRoutes registers the statement endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/{companyID}/statement", h.statement)
	r.Get("/{companyID}/totals", h.totals)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.PathID(r, "companyID")
	if err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	q := Query{
		CompanyAccountID: companyID,
		UsePostingDate:   r.URL.Query().Get("date_basis") == "posting",
		ShowVoided:       httpx.QueryBool(r, "show_voided"),
		Page:             httpx.QueryInt(r, "page", 1),
		PerPage:          httpx.QueryInt(r, "per_page", shared.DefaultPerPage),
	}
	if q.From, err = httpx.QueryDate(r, "from"); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if q.To, err = httpx.QueryDate(r, "to"); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	if q.HotelID, err = httpx.QueryID(r, "hotel_id"); err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	stmt, err := h.reader.GetTransactions(r.Context(), q)
	if err != nil {
		h.fail(w, "city ledger statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stmt)
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.PathID(r, "companyID")
	if err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	methodID, err := httpx.QueryID(r, "payment_method_id")
	if err != nil || methodID == nil {
		httpx.BadRequest(w, "payment_method_id is required")
		return
	}
	hotelID, err := httpx.QueryID(r, "hotel_id")
	if err != nil {
		httpx.BadRequest(w, err.Error())
		return
	}
	totals, err := h.reader.CalculateTotals(r.Context(), companyID, *methodID, hotelID)
	if err != nil {
		h.fail(w, "city ledger totals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, ErrInvalidQuery) || errors.Is(err, ErrNotCityLedgerMethod) {
		httpx.BadRequest(w, err.Error())
		return
	}
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
