package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-folio/internal/jobqueue"
	jobmetrics "github.com/odyssey-erp/odyssey-folio/internal/jobs"
	"github.com/odyssey-erp/odyssey-folio/internal/repair"
)

// Detector finds ledger consistency violations without fixing them.
type Detector interface {
	Detect(ctx context.Context, hotelID *int64, limit int) ([]repair.Candidate, error)
}

// IntegrityScanJob counts ledger anomalies per kind and hotel. Fixing is left to
// the repair command or a LEDGER_REPAIR job.
type IntegrityScanJob struct {
	Detector Detector
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewIntegrityScanJob initialises the integrity scan handler.
func NewIntegrityScanJob(detector Detector, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{Detector: detector, Logger: logger, Metrics: metrics}
}

type anomalyKey struct {
	kind  repair.Kind
	hotel int64
}

// Handle executes the scan.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Detector == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("integrity scan: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrityScan)
	defer func() { err = tracker.End(err) }()

	found, err := j.Detector.Detect(ctx, payload.HotelID, payload.Limit)
	if err != nil {
		j.logger().Error("integrity scan failed", slog.Any("error", err))
		return err
	}
	counts := map[anomalyKey]int{}
	for _, c := range found {
		counts[anomalyKey{kind: c.Kind, hotel: c.HotelID}]++
		j.logger().Warn("ledger anomaly detected",
			slog.String("kind", string(c.Kind)),
			slog.Int64("hotel_id", c.HotelID),
			slog.Int64("source_id", c.SourceID),
			slog.Int64("linked_id", c.LinkedID),
		)
	}
	keys := make([]anomalyKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].kind != keys[b].kind {
			return keys[a].kind < keys[b].kind
		}
		return keys[a].hotel < keys[b].hotel
	})
	for _, k := range keys {
		j.Metrics.AddAnomalies(string(k.kind), k.hotel, counts[k])
	}
	j.logger().Info("integrity scan completed", slog.Int("anomalies", len(found)))
	return nil
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// AuditScheduler enqueues the nightly audits.
type AuditScheduler interface {
	EnqueueNightAudits(ctx context.Context) (jobqueue.ScheduleResult, error)
}

// NightAuditScheduleJob bridges the cron entry to the durable job queue.
type NightAuditScheduleJob struct {
	Scheduler AuditScheduler
	Metrics   *jobmetrics.Metrics
}

// Handle processes TaskNightAuditSchedule tasks.
func (j *NightAuditScheduleJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Scheduler == nil {
		return errors.New("night audit schedule: handler not configured")
	}
	tracker := j.Metrics.Track(TaskNightAuditSchedule)
	defer func() { err = tracker.End(err) }()
	_, err = j.Scheduler.EnqueueNightAudits(ctx)
	return err
}
