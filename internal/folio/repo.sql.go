package folio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-folio/internal/platform/db"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

const (
	constraintPrimaryFolio = "folios_primary_guest_key"
	constraintGuestFolio   = "folios_reservation_guest_key"
	constraintRoomPosting  = "folio_transactions_room_posting_key"
)

const folioColumns = `id, folio_number, hotel_id, reservation_id, COALESCE(guest_id, 0), company_account_id, folio_type, is_primary,
status, settlement_status, total_charges, total_payments, total_adjustments, total_taxes, total_service_charges,
total_discounts, balance, credit_limit, credit_limit_exceeded, currency_code, exchange_rate, closed_date, closed_by,
final_balance, created_at, updated_at`

const transactionColumns = `id, transaction_number, folio_id, reservation_id, hotel_id, transaction_type, category, applies_to,
description, amount, tax_amount, service_charge_amount, total_amount, currency_code, exchange_rate, transaction_date,
posting_date, service_date, reservation_room_id, payment_method_id, is_posted, is_voided, voided_at, voided_by,
COALESCE(void_reason, ''), original_transaction_id, corrected_transaction_id, transferred_to_folio_id, posted_by, created_at`

// Repository persists folios and their transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("folio: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Wrap exposes folio operations on a transaction owned by another package.
func Wrap(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) LockFolios(ctx context.Context, ids []int64) (map[int64]Folio, error) {
	ids = uniqueIDs(ids)
	rows, err := r.tx.Query(ctx, `SELECT `+folioColumns+` FROM folios WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]Folio, len(ids))
	for rows.Next() {
		f, err := scanFolio(rows)
		if err != nil {
			return nil, err
		}
		out[f.ID] = f
	}
	return out, rows.Err()
}

func (r *txRepository) GetFolio(ctx context.Context, id int64) (Folio, error) {
	return r.oneFolio(ctx, `SELECT `+folioColumns+` FROM folios WHERE id=$1`, id)
}

func (r *txRepository) FindPrimaryFolio(ctx context.Context, reservationID int64) (Folio, error) {
	return r.oneFolio(ctx, `SELECT `+folioColumns+` FROM folios
WHERE reservation_id=$1 AND is_primary AND status <> 'transferred'
ORDER BY id LIMIT 1`, reservationID)
}

func (r *txRepository) FindGuestFolio(ctx context.Context, reservationID, guestID int64) (Folio, error) {
	return r.oneFolio(ctx, `SELECT `+folioColumns+` FROM folios
WHERE reservation_id=$1 AND guest_id=$2
ORDER BY id LIMIT 1`, reservationID, guestID)
}

func (r *txRepository) InsertFolio(ctx context.Context, f Folio) (Folio, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO folios (folio_number, hotel_id, reservation_id, guest_id, company_account_id, folio_type,
is_primary, status, settlement_status, total_charges, total_payments, total_adjustments, total_taxes, total_service_charges,
total_discounts, balance, credit_limit, credit_limit_exceeded, currency_code, exchange_rate, created_at, updated_at)
VALUES ('F' || LPAD(nextval('folio_number_seq')::text, 8, '0'), $1,$2,$3,$4,$5,$6,$7,$8,0,0,0,0,0,0,0,$9,FALSE,$10,$11,$12,$12)
RETURNING `+folioColumns,
		f.HotelID, f.ReservationID, nullInt(f.GuestID), f.CompanyAccountID, string(f.Type), f.IsPrimary, string(f.Status),
		string(f.SettlementStatus), f.CreditLimit, f.CurrencyCode, f.ExchangeRate, f.CreatedAt)
	created, err := scanFolio(row)
	if err != nil {
		switch {
		case shared.IsUniqueViolation(err, constraintPrimaryFolio):
			return Folio{}, ErrPrimaryFolioExists
		case shared.IsUniqueViolation(err, constraintGuestFolio):
			return Folio{}, ErrGuestFolioExists
		}
		return Folio{}, err
	}
	return created, nil
}

func (r *txRepository) UpdateFolioTotals(ctx context.Context, id int64, t Totals, settlement SettlementStatus) error {
	tag, err := r.tx.Exec(ctx, `UPDATE folios SET total_charges=$2, total_payments=$3, total_adjustments=$4, total_taxes=$5,
total_service_charges=$6, total_discounts=$7, balance=$8, settlement_status=$9, updated_at=NOW()
WHERE id=$1`, id, t.Charges, t.Payments, t.Adjustments, t.Taxes, t.ServiceCharges, t.Discounts, t.Balance, string(settlement))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrFolioNotFound
	}
	return nil
}

func (r *txRepository) UpdateCreditFlag(ctx context.Context, id int64, exceeded bool) error {
	_, err := r.tx.Exec(ctx, `UPDATE folios SET credit_limit_exceeded=$2, updated_at=NOW() WHERE id=$1`, id, exceeded)
	return err
}

func (r *txRepository) MarkFolioClosed(ctx context.Context, id, closedBy int64, closedAt time.Time, finalBalance decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE folios SET status='closed', closed_date=$2, closed_by=$3, final_balance=$4, updated_at=NOW()
WHERE id=$1`, id, closedAt, closedBy, finalBalance)
	return err
}

func (r *txRepository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM folio_transactions WHERE id=$1`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return txn, err
}

func (r *txRepository) ListFolioTransactions(ctx context.Context, folioID int64) ([]Transaction, error) {
	return r.listTransactions(ctx, `SELECT `+transactionColumns+` FROM folio_transactions WHERE folio_id=$1 ORDER BY id`, folioID)
}

func (r *txRepository) ListLinkedTransactions(ctx context.Context, originalID int64) ([]Transaction, error) {
	return r.listTransactions(ctx, `SELECT `+transactionColumns+` FROM folio_transactions WHERE original_transaction_id=$1 ORDER BY id`, originalID)
}

func (r *txRepository) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO folio_transactions (transaction_number, folio_id, reservation_id, hotel_id,
transaction_type, category, applies_to, description, amount, tax_amount, service_charge_amount, total_amount, currency_code,
exchange_rate, transaction_date, posting_date, service_date, reservation_room_id, payment_method_id, is_posted, is_voided,
original_transaction_id, transferred_to_folio_id, posted_by, created_at)
VALUES ('T' || LPAD(nextval('folio_transaction_number_seq')::text, 10, '0'), $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
$17,$18,$19,FALSE,$20,$21,$22,NOW())
RETURNING `+transactionColumns,
		t.FolioID, t.ReservationID, t.HotelID, string(t.Type), string(t.Category), string(bucketOf(t)), t.Description,
		t.Amount.Round(2), t.TaxAmount.Round(2), t.ServiceChargeAmount.Round(2), t.TotalAmount.Round(2), t.CurrencyCode,
		t.ExchangeRate, t.TransactionDate, t.PostingDate, t.ServiceDate, t.ReservationRoomID, t.PaymentMethodID, t.IsPosted,
		t.OriginalTransactionID, t.TransferredToFolioID, t.PostedBy)
	created, err := scanTransaction(row)
	if err != nil {
		if shared.IsUniqueViolation(err, constraintRoomPosting) {
			return Transaction{}, ErrDuplicateRoomCharge
		}
		return Transaction{}, err
	}
	return created, nil
}

func (r *txRepository) MarkVoided(ctx context.Context, id, voidedBy int64, at time.Time, reason string) error {
	tag, err := r.tx.Exec(ctx, `UPDATE folio_transactions SET is_voided=TRUE, voided_at=$2, voided_by=$3, void_reason=$4
WHERE id=$1 AND NOT is_voided`, id, at, voidedBy, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrAlreadyVoided, id)
	}
	return nil
}

func (r *txRepository) SetCorrectedBy(ctx context.Context, id int64, correctionID *int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE folio_transactions SET corrected_transaction_id=$2 WHERE id=$1`, id, correctionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *txRepository) RoomChargeExists(ctx context.Context, reservationRoomID int64, serviceDate time.Time) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM folio_transactions
WHERE reservation_room_id=$1 AND service_date=$2 AND transaction_type='room_posting'
  AND original_transaction_id IS NULL AND NOT is_voided)`, reservationRoomID, serviceDate).Scan(&exists)
	return exists, err
}

func (r *txRepository) IsBusinessDayClosed(ctx context.Context, hotelID int64, date time.Time) (bool, error) {
	var closed bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM night_audit_runs WHERE hotel_id=$1 AND audit_date=$2 AND closed_at IS NOT NULL)`, hotelID, date).Scan(&closed)
	return closed, err
}

func (r *txRepository) ListPostedOn(ctx context.Context, hotelID int64, date time.Time) ([]Transaction, error) {
	return r.listTransactions(ctx, `SELECT `+transactionColumns+` FROM folio_transactions
WHERE hotel_id=$1 AND posting_date=$2 AND NOT is_voided ORDER BY id`, hotelID, date)
}

func (r *txRepository) SumOpenBalances(ctx context.Context, hotelID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0) FROM folios WHERE hotel_id=$1 AND status='open'`, hotelID).Scan(&total)
	return total, err
}

func (r *txRepository) oneFolio(ctx context.Context, query string, args ...any) (Folio, error) {
	f, err := scanFolio(r.tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Folio{}, ErrFolioNotFound
	}
	return f, err
}

func (r *txRepository) listTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func scanFolio(row pgx.Row) (Folio, error) {
	var (
		f          Folio
		folioType  string
		status     string
		settlement string
		final      decimal.NullDecimal
	)
	err := row.Scan(&f.ID, &f.FolioNumber, &f.HotelID, &f.ReservationID, &f.GuestID, &f.CompanyAccountID, &folioType, &f.IsPrimary,
		&status, &settlement, &f.Totals.Charges, &f.Totals.Payments, &f.Totals.Adjustments, &f.Totals.Taxes,
		&f.Totals.ServiceCharges, &f.Totals.Discounts, &f.Totals.Balance, &f.CreditLimit, &f.CreditLimitExceeded,
		&f.CurrencyCode, &f.ExchangeRate, &f.ClosedDate, &f.ClosedBy, &final, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return Folio{}, err
	}
	f.Type = Type(folioType)
	f.Status = Status(status)
	f.SettlementStatus = SettlementStatus(settlement)
	if final.Valid {
		f.FinalBalance = &final.Decimal
	}
	return f, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		t         Transaction
		txType    string
		category  string
		appliesTo string
	)
	err := row.Scan(&t.ID, &t.TransactionNumber, &t.FolioID, &t.ReservationID, &t.HotelID, &txType, &category, &appliesTo,
		&t.Description, &t.Amount, &t.TaxAmount, &t.ServiceChargeAmount, &t.TotalAmount, &t.CurrencyCode, &t.ExchangeRate,
		&t.TransactionDate, &t.PostingDate, &t.ServiceDate, &t.ReservationRoomID, &t.PaymentMethodID, &t.IsPosted,
		&t.IsVoided, &t.VoidedAt, &t.VoidedBy, &t.VoidReason, &t.OriginalTransactionID, &t.CorrectedTransactionID,
		&t.TransferredToFolioID, &t.PostedBy, &t.CreatedAt)
	if err != nil {
		return Transaction{}, err
	}
	t.Type = TransactionType(txType)
	t.Category = Category(category)
	t.AppliesTo = TransactionType(appliesTo)
	return t, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
