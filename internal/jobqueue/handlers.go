package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-folio/internal/folio"
	"github.com/odyssey-erp/odyssey-folio/internal/nightaudit"
	"github.com/odyssey-erp/odyssey-folio/internal/repair"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

// AuditRunner closes a hotel day.
type AuditRunner interface {
	Run(ctx context.Context, payload nightaudit.Payload) (nightaudit.DailySummaryFact, error)
}

// NightAuditHandler runs NIGHT_AUDIT jobs.
func NightAuditHandler(runner AuditRunner) Handler {
	return HandlerFunc(func(ctx context.Context, job Job) error {
		payload, err := Decode[NightAuditPayload](job)
		if err != nil {
			return err
		}
		_, err = runner.Run(ctx, payload)
		return err
	})
}

// Repairer sweeps ledger consistency violations.
type Repairer interface {
	Run(ctx context.Context, opts repair.Options) (repair.Report, error)
}

// LedgerRepairHandler runs LEDGER_REPAIR jobs. Individual fix failures do not
// stop the sweep but fail the job so it is retried.
func LedgerRepairHandler(repairer Repairer, logger *slog.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, job Job) error {
		payload, err := Decode[LedgerRepairPayload](job)
		if err != nil {
			return err
		}
		report, err := repairer.Run(ctx, repair.Options{
			HotelID:         payload.HotelID,
			DryRun:          payload.DryRun,
			ContinueOnError: true,
			Limit:           payload.Limit,
			Actor:           payload.ActorID,
		})
		if err != nil {
			return err
		}
		if logger != nil {
			logger.Info("ledger repair job",
				slog.String("job_id", job.ID.String()),
				slog.Int("found", report.Found),
				slog.Int("fixed", report.Fixed),
			)
		}
		if report.Failed > 0 {
			return fmt.Errorf("repair: %d of %d fixes failed", report.Failed, report.Found)
		}
		return nil
	})
}

// Recomputer re-derives folio totals from history.
type Recomputer interface {
	RecomputeFolio(ctx context.Context, folioID int64) (folio.Folio, error)
}

// FolioRecalculateHandler runs FOLIO_RECALCULATE jobs. Every folio is attempted
// and the failures are returned together.
func FolioRecalculateHandler(recomputer Recomputer) Handler {
	return HandlerFunc(func(ctx context.Context, job Job) error {
		payload, err := Decode[FolioRecalculatePayload](job)
		if err != nil {
			return err
		}
		if len(payload.FolioIDs) == 0 {
			return fmt.Errorf("%w: jobqueue: folio recalculate without folio ids", shared.ErrConfiguration)
		}
		var errs []error
		for _, id := range payload.FolioIDs {
			if _, err := recomputer.RecomputeFolio(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("folio %d: %w", id, err))
			}
		}
		return errors.Join(errs...)
	})
}
