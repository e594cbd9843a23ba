package cityledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-folio/internal/folio"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

// Query filters a company account statement.
type Query struct {
	CompanyAccountID int64
	From             time.Time
	To               time.Time
	// UsePostingDate filters on posting date instead of transaction date.
	UsePostingDate bool
	HotelID        *int64
	ShowVoided     bool
	Page           int
	PerPage        int
}

// Row is one statement line.
type Row struct {
	folio.Transaction
	FolioNumber string `json:"folio_number"`
}

// Statement is a page of rows plus totals over the whole filtered set.
type Statement struct {
	Rows   []Row             `json:"rows"`
	Totals folio.Totals      `json:"totals"`
	Meta   shared.Pagination `json:"meta"`
}

// Totals are the company figures for one city ledger payment method.
type Totals struct {
	Charges  decimal.Decimal `json:"charges"`
	Payments decimal.Decimal `json:"payments"`
	Balance  decimal.Decimal `json:"balance"`
}

// PaymentMethod is the registry view used for scoping.
type PaymentMethod struct {
	ID           int64
	Name         string
	MethodType   string
	IsCityLedger bool
}

var (
	// ErrNotCityLedgerMethod indicates totals requested for a non city ledger method.
	ErrNotCityLedgerMethod = errors.New("cityledger: payment method is not a city ledger method")
	// ErrPaymentMethodNotFound indicates an unknown payment method.
	ErrPaymentMethodNotFound = fmt.Errorf("cityledger: payment method %w", shared.ErrNotFound)
	// ErrInvalidQuery covers malformed statement filters.
	ErrInvalidQuery = errors.New("cityledger: invalid query")
)
