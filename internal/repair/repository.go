package repair

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-folio/internal/platform/db"
)

// PgFinder runs the detection queries against PostgreSQL.
type PgFinder struct {
	pool *pgxpool.Pool
}

// NewFinder constructs PgFinder.
func NewFinder(pool *pgxpool.Pool) *PgFinder {
	return &PgFinder{pool: pool}
}

func (f *PgFinder) FindVoidedPaymentOrphans(ctx context.Context, hotelID *int64, limit int) ([]Candidate, error) {
	return f.query(ctx, KindVoidedPaymentOrphan, `SELECT p.hotel_id, p.id, c.id
FROM folio_transactions p
JOIN folio_transactions c ON c.original_transaction_id = p.id
WHERE p.transaction_type = 'payment' AND p.is_voided
  AND c.transaction_type = 'transfer' AND NOT c.is_voided
  AND ($1::bigint IS NULL OR p.hotel_id = $1)
ORDER BY p.id, c.id
LIMIT NULLIF($2::int, 0)`, hotelID, limit)
}

// FindTransferPairMismatches reports the voided side as source so the fix can
// cascade from it to the side left live.
func (f *PgFinder) FindTransferPairMismatches(ctx context.Context, hotelID *int64, limit int) ([]Candidate, error) {
	return f.query(ctx, KindTransferPairMismatch, `SELECT o.hotel_id,
  CASE WHEN o.is_voided THEN o.id ELSE i.id END,
  CASE WHEN o.is_voided THEN i.id ELSE o.id END
FROM folio_transactions o
JOIN folio_transactions i ON i.original_transaction_id = o.id
  AND i.transaction_type = 'transfer' AND i.category = 'transfer_in'
WHERE o.transaction_type = 'transfer' AND o.category = 'transfer_out'
  AND o.is_voided <> i.is_voided
  AND ($1::bigint IS NULL OR o.hotel_id = $1)
ORDER BY o.id
LIMIT NULLIF($2::int, 0)`, hotelID, limit)
}

// query runs read-only so detection never takes row locks the ledger needs.
func (f *PgFinder) query(ctx context.Context, kind Kind, sql string, hotelID *int64, limit int) ([]Candidate, error) {
	var out []Candidate
	err := db.WithReadOnlyTx(ctx, f.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, hotelID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			c := Candidate{Kind: kind}
			if err := rows.Scan(&c.HotelID, &c.SourceID, &c.LinkedID); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, err
}
