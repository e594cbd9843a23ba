package cityledger

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-folio/internal/folio"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

// Repository reads company account ledger rows.
type Repository interface {
	// StatementRows returns rows matching q ordered by date then id. Voided
	// rows are included only when q.ShowVoided is set.
	StatementRows(ctx context.Context, q Query) ([]Row, error)
	// CompanyTransactions returns the non-voided rows of every folio owned by the company.
	CompanyTransactions(ctx context.Context, companyID int64, hotelID *int64) ([]folio.Transaction, error)
}

// PaymentMethods is the payment method registry.
type PaymentMethods interface {
	GetPaymentMethod(ctx context.Context, id int64) (PaymentMethod, error)
}

// Service aggregates company account activity across folios.
type Service struct {
	repo    Repository
	methods PaymentMethods
	cache   *Cache
	group   singleflight.Group
	logger  *slog.Logger
}

// NewService wires the repositories with a cache helper. A nil cache disables caching.
func NewService(repo Repository, methods PaymentMethods, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, methods: methods, cache: cache, logger: logger}
}

// GetTransactions returns one page of a company statement. Totals always cover
// the full filtered set and never include voided rows.
func (s *Service) GetTransactions(ctx context.Context, q Query) (Statement, error) {
	if q.CompanyAccountID <= 0 {
		return Statement{}, fmt.Errorf("%w: company account required", ErrInvalidQuery)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return Statement{}, fmt.Errorf("%w: date range reversed", ErrInvalidQuery)
	}
	rows, err := s.repo.StatementRows(ctx, q)
	if err != nil {
		return Statement{}, err
	}
	txns := make([]folio.Transaction, 0, len(rows))
	for _, row := range rows {
		txns = append(txns, row.Transaction)
	}
	meta := shared.NewPagination(q.Page, q.PerPage, len(rows))
	start, end := meta.Bounds()
	return Statement{
		Rows:   rows[start:end],
		Totals: folio.ComputeTotals(txns),
		Meta:   meta,
	}, nil
}

// CalculateTotals returns the company's charges against the payments made with
// one city ledger payment method.
func (s *Service) CalculateTotals(ctx context.Context, companyID, paymentMethodID int64, hotelID *int64) (Totals, error) {
	method, err := s.methods.GetPaymentMethod(ctx, paymentMethodID)
	if err != nil {
		return Totals{}, err
	}
	if !method.IsCityLedger {
		return Totals{}, fmt.Errorf("%w: %s", ErrNotCityLedgerMethod, method.Name)
	}
	key, err := s.cache.BuildKey(ctx, keyTotals(companyID, paymentMethodID, hotelID))
	if err != nil {
		s.log().Warn("cityledger cache version", slog.Any("error", err))
		return s.loadTotals(ctx, companyID, paymentMethodID, hotelID)
	}

	// The flight is shared, so it must outlive the caller that started it.
	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		var totals Totals
		err := s.cache.FetchJSON(flightCtx, key, &totals, func(ctx context.Context) (any, error) {
			return s.loadTotals(ctx, companyID, paymentMethodID, hotelID)
		})
		return totals, err
	})
	select {
	case <-ctx.Done():
		return Totals{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Totals{}, res.Err
		}
		return res.Val.(Totals), nil
	}
}

func (s *Service) loadTotals(ctx context.Context, companyID, paymentMethodID int64, hotelID *int64) (Totals, error) {
	txns, err := s.repo.CompanyTransactions(ctx, companyID, hotelID)
	if err != nil {
		return Totals{}, err
	}
	return totalsFor(txns, paymentMethodID), nil
}

// totalsFor keeps every non-payment row and the payment-bucket rows of the
// method. Transfer legs of a payment carry its method, so a payment moved off
// a company folio nets out on both sides.
func totalsFor(txns []folio.Transaction, paymentMethodID int64) Totals {
	scoped := make([]folio.Transaction, 0, len(txns))
	for _, txn := range txns {
		if isPaymentBucket(txn) && (txn.PaymentMethodID == nil || *txn.PaymentMethodID != paymentMethodID) {
			continue
		}
		scoped = append(scoped, txn)
	}
	t := folio.ComputeTotals(scoped)
	return Totals{
		Charges:  t.Balance.Add(t.Payments),
		Payments: t.Payments,
		Balance:  t.Balance,
	}
}

func isPaymentBucket(txn folio.Transaction) bool {
	bucket := txn.AppliesTo
	if bucket == "" {
		bucket = txn.Type
	}
	return bucket == folio.TxPayment || bucket == folio.TxRefund
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
