package tax

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads tax configuration from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RatesByID loads rates with their slabs and dependency edges.
func (r *Repository) RatesByID(ctx context.Context, ids []int64) ([]Rate, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, posting_type, percentage, amount, apply_after_discount
FROM tax_rates WHERE id = ANY($1) AND is_active ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	index := make(map[int64]int, len(ids))
	var rates []Rate
	for rows.Next() {
		var rate Rate
		if err := rows.Scan(&rate.ID, &rate.Name, &rate.PostingType, &rate.Percentage, &rate.Amount, &rate.ApplyAfterDiscount); err != nil {
			return nil, err
		}
		index[rate.ID] = len(rates)
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, nil
	}

	depRows, err := r.pool.Query(ctx, `SELECT tax_rate_id, apply_after_id FROM tax_rate_dependencies
WHERE tax_rate_id = ANY($1) ORDER BY tax_rate_id, apply_after_id`, ids)
	if err != nil {
		return nil, err
	}
	defer depRows.Close()
	for depRows.Next() {
		var rateID, dep int64
		if err := depRows.Scan(&rateID, &dep); err != nil {
			return nil, err
		}
		if pos, ok := index[rateID]; ok {
			rates[pos].ApplyAfter = append(rates[pos].ApplyAfter, dep)
		}
	}
	if err := depRows.Err(); err != nil {
		return nil, err
	}

	slabRows, err := r.pool.Query(ctx, `SELECT tax_rate_id, from_amount, COALESCE(to_amount, 0), percentage, amount
FROM tax_rate_slabs WHERE tax_rate_id = ANY($1) ORDER BY tax_rate_id, from_amount`, ids)
	if err != nil {
		return nil, err
	}
	defer slabRows.Close()
	for slabRows.Next() {
		var rateID int64
		var slab Slab
		if err := slabRows.Scan(&rateID, &slab.From, &slab.To, &slab.Percentage, &slab.Amount); err != nil {
			return nil, err
		}
		if pos, ok := index[rateID]; ok {
			rates[pos].Slabs = append(rates[pos].Slabs, slab)
		}
	}
	return rates, slabRows.Err()
}

// RateIDsForCategory lists the active rates bound to a charge category for a hotel.
func (r *Repository) RateIDsForCategory(ctx context.Context, hotelID int64, category string) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT c.tax_rate_id FROM tax_rate_categories c
JOIN tax_rates t ON t.id = c.tax_rate_id
WHERE c.hotel_id = $1 AND c.category = $2 AND t.is_active ORDER BY c.tax_rate_id`, hotelID, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
