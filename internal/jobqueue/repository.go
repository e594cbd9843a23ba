package jobqueue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, job_type, payload, status, attempts, COALESCE(last_error, ''), created_at, updated_at, started_at, completed_at`

// Repository is the PostgreSQL job table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Claim moves one eligible job to processing in a single statement. SKIP LOCKED
// lets concurrent workers claim different rows without blocking each other.
func (r *Repository) Claim(ctx context.Context, types []Type, now time.Time) (Job, error) {
	if len(types) == 0 {
		return Job{}, ErrNoJob
	}
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	job, err := scanJob(r.pool.QueryRow(ctx, `UPDATE jobs SET status = 'processing', started_at = $4, updated_at = $4
WHERE id = (
  SELECT id FROM jobs
  WHERE job_type = ANY($1)
    AND (status = 'pending'
      OR (status = 'failed' AND attempts < CASE WHEN job_type = 'NIGHT_AUDIT' THEN $2::int ELSE $3::int END))
  ORDER BY created_at, id
  FOR UPDATE SKIP LOCKED
  LIMIT 1)
RETURNING `+jobColumns, names, nightAuditCeiling, defaultCeiling, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNoJob
	}
	return job, err
}

func (r *Repository) Complete(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE jobs SET status = 'completed', completed_at = $2, updated_at = $2, last_error = NULL
WHERE id = $1 AND status = 'processing'`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *Repository) Fail(ctx context.Context, id uuid.UUID, attempts int, lastError string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE jobs SET status = 'failed', attempts = $2, last_error = $3, updated_at = $4
WHERE id = $1 AND status = 'processing'`, id, attempts, lastError, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// Enqueue stores a new job.
func (r *Repository) Enqueue(ctx context.Context, job Job) (Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `INSERT INTO jobs (id, job_type, payload, status, attempts, created_at, updated_at)
VALUES ($1, $2, $3, $4, 0, $5, $5)
RETURNING `+jobColumns, job.ID, string(job.Type), []byte(job.Payload), string(job.Status), job.CreatedAt))
}

// EnqueueNightAuditOnce stores the job unless a live NIGHT_AUDIT already exists
// for the hotel and date. Parked jobs do not count as live.
func (r *Repository) EnqueueNightAuditOnce(ctx context.Context, job Job, payload NightAuditPayload) (bool, error) {
	tag, err := r.pool.Exec(ctx, `INSERT INTO jobs (id, job_type, payload, status, attempts, created_at, updated_at)
SELECT $1, 'NIGHT_AUDIT', $2, 'pending', 0, $3, $3
WHERE NOT EXISTS (
  SELECT 1 FROM jobs
  WHERE job_type = 'NIGHT_AUDIT'
    AND payload->>'hotelId' = $4 AND payload->>'auditDate' = $5
    AND NOT (status = 'failed' AND attempts >= $6))`,
		job.ID, []byte(job.Payload), job.CreatedAt,
		strconv.FormatInt(payload.HotelID, 10), payload.AuditDate, nightAuditCeiling)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Get loads one job.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Job, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	return job, err
}

// ListStuck returns jobs processing since before the cutoff.
func (r *Repository) ListStuck(ctx context.Context, startedBefore time.Time) ([]Job, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs
WHERE status = 'processing' AND started_at < $1 ORDER BY started_at`, startedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// PendingByType counts pending jobs per type.
func (r *Repository) PendingByType(ctx context.Context) (map[Type]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT job_type, COUNT(*) FROM jobs WHERE status = 'pending' GROUP BY job_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[Type]int{}
	for rows.Next() {
		var (
			typ   string
			count int
		)
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, err
		}
		out[Type(typ)] = count
	}
	return out, rows.Err()
}

// ActiveHotels lists hotels the nightly scheduler audits.
func (r *Repository) ActiveHotels(ctx context.Context) ([]Hotel, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, COALESCE(NULLIF(timezone, ''), 'UTC') FROM hotels WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Hotel
	for rows.Next() {
		var h Hotel
		if err := rows.Scan(&h.ID, &h.Timezone); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (Job, error) {
	var (
		job     Job
		jobType string
		status  string
		payload []byte
	)
	if err := row.Scan(&job.ID, &jobType, &payload, &status, &job.Attempts, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt); err != nil {
		return Job{}, err
	}
	job.Type = Type(jobType)
	job.Status = Status(status)
	job.Payload = payload
	return job, nil
}
