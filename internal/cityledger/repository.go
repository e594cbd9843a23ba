package cityledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-folio/internal/folio"
)

// PgRepository reads city ledger data from PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const statementColumns = `t.id, t.transaction_number, t.folio_id, t.reservation_id, t.hotel_id, t.transaction_type, t.category,
t.applies_to, t.description, t.amount, t.tax_amount, t.service_charge_amount, t.total_amount, t.currency_code,
t.transaction_date, t.posting_date, t.payment_method_id, t.is_voided, t.original_transaction_id,
t.transferred_to_folio_id, f.folio_number`

func (r *PgRepository) StatementRows(ctx context.Context, q Query) ([]Row, error) {
	dateColumn := "t.transaction_date::date"
	if q.UsePostingDate {
		dateColumn = "t.posting_date"
	}
	var sb strings.Builder
	sb.WriteString(`SELECT ` + statementColumns + `
FROM folio_transactions t
JOIN folios f ON f.id = t.folio_id
WHERE f.company_account_id = $1
  AND ` + dateColumn + ` BETWEEN COALESCE($2::date, '-infinity'::date) AND COALESCE($3::date, 'infinity'::date)
  AND ($4::bigint IS NULL OR t.hotel_id = $4)`)
	if !q.ShowVoided {
		sb.WriteString("\n  AND NOT t.is_voided")
	}
	sb.WriteString("\nORDER BY " + dateColumn + ", t.id")

	rows, err := r.pool.Query(ctx, sb.String(), q.CompanyAccountID, nullDate(q.From), nullDate(q.To), q.HotelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		var (
			row       Row
			txType    string
			category  string
			appliesTo string
		)
		if err := rows.Scan(&row.ID, &row.TransactionNumber, &row.FolioID, &row.ReservationID, &row.HotelID, &txType,
			&category, &appliesTo, &row.Description, &row.Amount, &row.TaxAmount, &row.ServiceChargeAmount,
			&row.TotalAmount, &row.CurrencyCode, &row.TransactionDate, &row.PostingDate, &row.PaymentMethodID,
			&row.IsVoided, &row.OriginalTransactionID, &row.TransferredToFolioID, &row.FolioNumber); err != nil {
			return nil, err
		}
		row.Type = folio.TransactionType(txType)
		row.Category = folio.Category(category)
		row.AppliesTo = folio.TransactionType(appliesTo)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *PgRepository) CompanyTransactions(ctx context.Context, companyID int64, hotelID *int64) ([]folio.Transaction, error) {
	rows, err := r.StatementRows(ctx, Query{CompanyAccountID: companyID, HotelID: hotelID})
	if err != nil {
		return nil, err
	}
	out := make([]folio.Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Transaction)
	}
	return out, nil
}

func (r *PgRepository) GetPaymentMethod(ctx context.Context, id int64) (PaymentMethod, error) {
	var m PaymentMethod
	err := r.pool.QueryRow(ctx, `SELECT id, name, method_type, is_city_ledger FROM payment_methods WHERE id=$1`, id).
		Scan(&m.ID, &m.Name, &m.MethodType, &m.IsCityLedger)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentMethod{}, ErrPaymentMethodNotFound
	}
	return m, err
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
