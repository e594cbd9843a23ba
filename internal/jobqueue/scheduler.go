package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	jobmetrics "github.com/odyssey-erp/odyssey-folio/internal/jobs"
)

// Hotel is the scheduling view of a property.
type Hotel struct {
	ID       int64
	Timezone string
}

// ScheduleStore persists scheduled audits.
type ScheduleStore interface {
	ActiveHotels(ctx context.Context) ([]Hotel, error)
	EnqueueNightAuditOnce(ctx context.Context, job Job, payload NightAuditPayload) (bool, error)
}

// Scheduler enqueues the nightly audits.
type Scheduler struct {
	store      ScheduleStore
	systemUser int64
	logger     *slog.Logger
	now        func() time.Time
}

// NewScheduler constructs a Scheduler posting audits as systemUser.
func NewScheduler(store ScheduleStore, systemUser int64, logger *slog.Logger) *Scheduler {
	return &Scheduler{store: store, systemUser: systemUser, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Scheduler) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ScheduleResult lists what one scheduling pass did.
type ScheduleResult struct {
	Enqueued []Job
	Skipped  int
}

// EnqueueNightAudits enqueues one NIGHT_AUDIT per active hotel for the
// previous calendar day in the hotel's timezone. Hotels that already have a
// live job for that day are skipped.
func (s *Scheduler) EnqueueNightAudits(ctx context.Context) (ScheduleResult, error) {
	hotels, err := s.store.ActiveHotels(ctx)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("jobqueue: active hotels: %w", err)
	}
	now := s.now()
	var result ScheduleResult
	for _, h := range hotels {
		loc, err := time.LoadLocation(h.Timezone)
		if err != nil {
			s.log().Warn("night audit schedule timezone", slog.Int64("hotel_id", h.ID), slog.String("timezone", h.Timezone), slog.Any("error", err))
			loc = time.UTC
		}
		local := now.In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
		payload := NightAuditPayload{AuditDate: day.Format("2006-01-02"), HotelID: h.ID, UserID: s.systemUser}
		job, err := NewJob(TypeNightAudit, payload, now)
		if err != nil {
			return result, err
		}
		created, err := s.store.EnqueueNightAuditOnce(ctx, job, payload)
		if err != nil {
			return result, fmt.Errorf("jobqueue: enqueue night audit hotel %d: %w", h.ID, err)
		}
		if !created {
			result.Skipped++
			continue
		}
		result.Enqueued = append(result.Enqueued, job)
	}
	s.log().Info("night audits scheduled", slog.Int("enqueued", len(result.Enqueued)), slog.Int("skipped", result.Skipped))
	return result, nil
}

func (s *Scheduler) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// StuckLister finds jobs processing for too long.
type StuckLister interface {
	ListStuck(ctx context.Context, startedBefore time.Time) ([]Job, error)
}

// PendingCounter counts pending jobs per type.
type PendingCounter interface {
	PendingByType(ctx context.Context) (map[Type]int, error)
}

// Monitor reports stuck jobs. It never retries them: a processing job may
// still be running somewhere.
type Monitor struct {
	lister    StuckLister
	pending   PendingCounter
	known     map[Type]bool
	threshold time.Duration
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewMonitor constructs a Monitor. A zero threshold defaults to 30m.
func NewMonitor(lister StuckLister, threshold time.Duration, metrics *jobmetrics.Metrics, logger *slog.Logger) *Monitor {
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}
	return &Monitor{lister: lister, threshold: threshold, metrics: metrics, logger: logger, now: time.Now}
}

// WatchTypes makes Check warn about pending jobs of types outside known. No
// worker claims those, so they would wait forever.
func (m *Monitor) WatchTypes(counter PendingCounter, known []Type) {
	m.pending = counter
	m.known = make(map[Type]bool, len(known))
	for _, t := range known {
		m.known[t] = true
	}
}

// Unclaimable counts pending jobs whose type no worker handles.
func (m *Monitor) Unclaimable(ctx context.Context) (map[Type]int, error) {
	if m.pending == nil {
		return nil, nil
	}
	counts, err := m.pending.PendingByType(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: pending by type: %w", err)
	}
	out := map[Type]int{}
	for t, n := range counts {
		if n > 0 && !m.known[t] {
			out[t] = n
		}
	}
	return out, nil
}

// Check lists stuck jobs, logs each and updates the gauge. Pending jobs of
// unregistered types are logged too.
func (m *Monitor) Check(ctx context.Context) ([]Job, error) {
	stuck, err := m.lister.ListStuck(ctx, m.now().Add(-m.threshold))
	if err != nil {
		return nil, fmt.Errorf("jobqueue: list stuck: %w", err)
	}
	m.metrics.SetStuck(len(stuck))
	for _, job := range stuck {
		attrs := []any{
			slog.String("job_id", job.ID.String()),
			slog.String("job_type", string(job.Type)),
			slog.Int("attempts", job.Attempts),
		}
		if job.StartedAt != nil {
			attrs = append(attrs, slog.Time("started_at", *job.StartedAt))
		}
		m.log().Warn("job stuck in processing", attrs...)
	}

	unknown, err := m.Unclaimable(ctx)
	if err != nil {
		return stuck, err
	}
	types := make([]Type, 0, len(unknown))
	for t := range unknown {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		m.log().Warn("pending jobs with unregistered type", slog.String("job_type", string(t)), slog.Int("count", unknown[t]))
	}
	return stuck, nil
}

// Run checks on every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := m.Check(ctx); err != nil {
			m.log().Error("stuck job check", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.Default()
}
