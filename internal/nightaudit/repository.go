package nightaudit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-folio/internal/folio"
	"github.com/odyssey-erp/odyssey-folio/internal/platform/db"
)

// PgRepository persists audit state in PostgreSQL and reads the reservation context.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

type txRepository struct {
	tx     pgx.Tx
	folios folio.TxRepository
}

// WithTx runs the audit unit of work in one repeatable-read transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("nightaudit: repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, folios: folio.Wrap(tx)})
	})
}

// StartRun records a new attempt. closed_at survives so a rerun of a closed day
// keeps it frozen.
func (r *PgRepository) StartRun(ctx context.Context, run Run) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO night_audit_runs (hotel_id, audit_date, run_id, status, started_at, finished_at, last_error, charges_posted)
VALUES ($1,$2,$3,'running',$4,NULL,NULL,0)
ON CONFLICT (hotel_id, audit_date) DO UPDATE SET run_id=EXCLUDED.run_id, status='running', started_at=EXCLUDED.started_at,
finished_at=NULL, last_error=NULL, charges_posted=0`, run.HotelID, run.AuditDate, run.ID, run.StartedAt)
	return err
}

func (r *PgRepository) FailRun(ctx context.Context, run Run) error {
	_, err := r.pool.Exec(ctx, `UPDATE night_audit_runs SET status='failed', finished_at=$4, last_error=$5
WHERE hotel_id=$1 AND audit_date=$2 AND run_id=$3`, run.HotelID, run.AuditDate, run.ID, run.FinishedAt, run.LastError)
	return err
}

func (r *PgRepository) GetRun(ctx context.Context, hotelID int64, date time.Time) (Run, error) {
	var (
		run    Run
		status string
	)
	err := r.pool.QueryRow(ctx, `SELECT run_id, hotel_id, audit_date, status, started_at, finished_at, COALESCE(last_error, ''), charges_posted, closed_at
FROM night_audit_runs WHERE hotel_id=$1 AND audit_date=$2`, hotelID, date).
		Scan(&run.ID, &run.HotelID, &run.AuditDate, &status, &run.StartedAt, &run.FinishedAt, &run.LastError, &run.ChargesPosted, &run.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, err
	}
	run.Status = RunStatus(status)
	return run, nil
}

func (r *txRepository) Folios() folio.TxRepository {
	return r.folios
}

const inHouseFilter = `r.hotel_id = $1 AND r.status = 'checked_in'
  AND rr.check_in_date <= $2 AND rr.check_out_date > $2`

func (r *txRepository) InHouseReservations(ctx context.Context, hotelID int64, date time.Time) ([]Reservation, error) {
	rows, err := r.tx.Query(ctx, `SELECT r.id, rr.id, rr.room_id, COALESCE(rm.room_number, ''), COALESCE(r.guest_id, 0), rr.room_rate
FROM reservations r
JOIN reservation_rooms rr ON rr.reservation_id = r.id
LEFT JOIN rooms rm ON rm.id = rr.room_id
WHERE `+inHouseFilter+`
ORDER BY r.id, rr.id`, hotelID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		var res Reservation
		if err := rows.Scan(&res.ID, &res.ReservationRoomID, &res.RoomID, &res.RoomNumber, &res.GuestID, &res.RoomRate); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// RollRoomStatus marks rooms of in-house stays dirty for the next day's housekeeping.
func (r *txRepository) RollRoomStatus(ctx context.Context, hotelID int64, date time.Time) (int, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE rooms SET housekeeping_status='dirty', updated_at=NOW()
WHERE hotel_id=$1 AND status <> 'out_of_order' AND id IN (
  SELECT rr.room_id FROM reservations r JOIN reservation_rooms rr ON rr.reservation_id = r.id
  WHERE `+inHouseFilter+`)`, hotelID, date)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *txRepository) RoomCounts(ctx context.Context, hotelID int64, date time.Time) (RoomCounts, error) {
	var counts RoomCounts
	err := r.tx.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM rooms WHERE hotel_id=$1),
  (SELECT COUNT(*) FROM rooms WHERE hotel_id=$1 AND status='out_of_order'),
  (SELECT COUNT(DISTINCT rr.room_id) FROM reservations r JOIN reservation_rooms rr ON rr.reservation_id = r.id
   WHERE `+inHouseFilter+`)`, hotelID, date).Scan(&counts.Total, &counts.OutOfOrder, &counts.Occupied)
	return counts, err
}

func (r *txRepository) GuestActivity(ctx context.Context, hotelID int64, date time.Time) (GuestActivity, error) {
	var g GuestActivity
	err := r.tx.QueryRow(ctx, `SELECT
  COUNT(*) FILTER (WHERE check_in_date = $2 AND status IN ('checked_in', 'checked_out')),
  COUNT(*) FILTER (WHERE check_out_date = $2 AND status = 'checked_out'),
  COUNT(*) FILTER (WHERE check_in_date = $2 AND status = 'no_show'),
  COUNT(*) FILTER (WHERE cancelled_at::date = $2),
  COUNT(*) FILTER (WHERE created_at::date = $2)
FROM reservations WHERE hotel_id = $1`, hotelID, date).Scan(&g.CheckIns, &g.CheckOuts, &g.NoShows, &g.Cancellations, &g.Bookings)
	return g, err
}

func (r *txRepository) UpsertSummary(ctx context.Context, f DailySummaryFact) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO daily_summary_facts (hotel_id, audit_date, room_revenue, food_beverage_revenue, other_revenue,
total_revenue, taxes, service_charges, discounts, total_rooms, out_of_order_rooms, available_rooms, occupied_rooms,
occupancy_rate, adr, revpar, check_ins, check_outs, no_shows, cancellations, bookings, payments_received,
outstanding_receivables, run_id, generated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)
ON CONFLICT (hotel_id, audit_date) DO UPDATE SET
  room_revenue=EXCLUDED.room_revenue, food_beverage_revenue=EXCLUDED.food_beverage_revenue,
  other_revenue=EXCLUDED.other_revenue, total_revenue=EXCLUDED.total_revenue, taxes=EXCLUDED.taxes,
  service_charges=EXCLUDED.service_charges, discounts=EXCLUDED.discounts, total_rooms=EXCLUDED.total_rooms,
  out_of_order_rooms=EXCLUDED.out_of_order_rooms, available_rooms=EXCLUDED.available_rooms,
  occupied_rooms=EXCLUDED.occupied_rooms, occupancy_rate=EXCLUDED.occupancy_rate, adr=EXCLUDED.adr,
  revpar=EXCLUDED.revpar, check_ins=EXCLUDED.check_ins, check_outs=EXCLUDED.check_outs, no_shows=EXCLUDED.no_shows,
  cancellations=EXCLUDED.cancellations, bookings=EXCLUDED.bookings, payments_received=EXCLUDED.payments_received,
  outstanding_receivables=EXCLUDED.outstanding_receivables, run_id=EXCLUDED.run_id, generated_at=EXCLUDED.generated_at`,
		f.HotelID, f.AuditDate, f.RoomRevenue, f.FoodBeverageRevenue, f.OtherRevenue, f.TotalRevenue, f.Taxes,
		f.ServiceCharges, f.Discounts, f.TotalRooms, f.OutOfOrderRooms, f.AvailableRooms, f.OccupiedRooms,
		f.OccupancyRate, f.ADR, f.RevPAR, f.CheckIns, f.CheckOuts, f.NoShows, f.Cancellations, f.Bookings,
		f.PaymentsReceived, f.OutstandingReceivables, f.RunID, f.GeneratedAt)
	return err
}

func (r *txRepository) CompleteRun(ctx context.Context, run Run) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO night_audit_runs (hotel_id, audit_date, run_id, status, started_at, finished_at, last_error, charges_posted, closed_at)
VALUES ($1,$2,$3,'completed',$4,$5,NULL,$6,$5)
ON CONFLICT (hotel_id, audit_date) DO UPDATE SET run_id=EXCLUDED.run_id, status='completed', started_at=EXCLUDED.started_at,
finished_at=EXCLUDED.finished_at, last_error=NULL, charges_posted=EXCLUDED.charges_posted,
closed_at=COALESCE(night_audit_runs.closed_at, EXCLUDED.closed_at)`,
		run.HotelID, run.AuditDate, run.ID, run.StartedAt, run.FinishedAt, run.ChargesPosted)
	return err
}
