package nightaudit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-folio/internal/folio"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

// Repository runs the audit unit of work.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the audit's view of one database transaction. Folios shares
// the same transaction so room postings commit with the summary row.
type TxRepository interface {
	Folios() folio.TxRepository
	InHouseReservations(ctx context.Context, hotelID int64, date time.Time) ([]Reservation, error)
	RollRoomStatus(ctx context.Context, hotelID int64, date time.Time) (int, error)
	RoomCounts(ctx context.Context, hotelID int64, date time.Time) (RoomCounts, error)
	GuestActivity(ctx context.Context, hotelID int64, date time.Time) (GuestActivity, error)
	UpsertSummary(ctx context.Context, fact DailySummaryFact) error
	CompleteRun(ctx context.Context, run Run) error
}

// RunStore records run transitions outside the audit transaction so a failed
// attempt stays visible after rollback.
type RunStore interface {
	StartRun(ctx context.Context, run Run) error
	FailRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, hotelID int64, date time.Time) (Run, error)
}

// Poster posts ledger rows inside a caller owned unit of work.
type Poster interface {
	PostInTx(ctx context.Context, tx folio.TxRepository, in folio.PostInput) (folio.Transaction, error)
}

// Reporter receives the finished summary for delivery.
type Reporter interface {
	SendDailySummaryEmail(ctx context.Context, fact DailySummaryFact) error
}

// Config tunes the processor.
type Config struct {
	LockTTL time.Duration
}

// Processor closes a hotel business day.
type Processor struct {
	repo     Repository
	runs     RunStore
	ledger   Poster
	locker   Locker
	reporter Reporter
	audit    folio.AuditPort
	notifier folio.ChangeNotifier
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
	newID    func() uuid.UUID
}

// NewProcessor wires the processor. Locker and reporter may be nil.
func NewProcessor(repo Repository, runs RunStore, ledger Poster, locker Locker, reporter Reporter, cfg Config, logger *slog.Logger) *Processor {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	return &Processor{
		repo:     repo,
		runs:     runs,
		ledger:   ledger,
		locker:   locker,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.New,
	}
}

// WithNow overrides the clock for testing.
func (p *Processor) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// WithAudit records completed runs in the audit log.
func (p *Processor) WithAudit(audit folio.AuditPort) {
	p.audit = audit
}

// WithNotifier is told after the audit commits its postings.
func (p *Processor) WithNotifier(n folio.ChangeNotifier) {
	p.notifier = n
}

// Run audits one hotel day. Re-running a completed day is safe: room postings
// already made are skipped, the summary row is overwritten and the day stays closed.
func (p *Processor) Run(ctx context.Context, payload Payload) (DailySummaryFact, error) {
	if err := payload.Validate(); err != nil {
		return DailySummaryFact{}, fmt.Errorf("%w: %w", shared.ErrConfiguration, err)
	}
	date, err := payload.Date()
	if err != nil {
		return DailySummaryFact{}, fmt.Errorf("%w: nightaudit: audit date: %w", shared.ErrConfiguration, err)
	}
	logger := p.log().With(slog.Int64("hotel_id", payload.HotelID), slog.String("audit_date", payload.AuditDate))

	if p.locker != nil {
		lock, err := p.locker.Obtain(ctx, shared.NightAuditLockKey(payload.HotelID, date), p.cfg.LockTTL)
		if err != nil {
			return DailySummaryFact{}, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("night audit lock release", slog.Any("error", err))
			}
		}()
	}

	run := Run{
		ID:        p.newID(),
		HotelID:   payload.HotelID,
		AuditDate: date,
		Status:    RunRunning,
		StartedAt: p.now(),
	}
	if err := p.runs.StartRun(ctx, run); err != nil {
		return DailySummaryFact{}, fmt.Errorf("nightaudit: start run: %w", err)
	}
	logger.Info("night audit started", slog.String("run_id", run.ID.String()))

	var fact DailySummaryFact
	err = p.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posted, err := p.postRoomCharges(ctx, tx, payload, date, logger)
		if err != nil {
			return fmt.Errorf("room charges: %w", err)
		}
		run.ChargesPosted = posted
		if _, err := tx.RollRoomStatus(ctx, payload.HotelID, date); err != nil {
			return fmt.Errorf("roll room status: %w", err)
		}
		fact, err = p.summarise(ctx, tx, payload.HotelID, date, run.ID)
		if err != nil {
			return fmt.Errorf("summary: %w", err)
		}
		if err := tx.UpsertSummary(ctx, fact); err != nil {
			return fmt.Errorf("upsert summary: %w", err)
		}
		finished := p.now()
		run.Status = RunCompleted
		run.FinishedAt = &finished
		return tx.CompleteRun(ctx, run)
	})
	if err != nil {
		failed := p.now()
		run.Status = RunFailed
		run.FinishedAt = &failed
		run.LastError = err.Error()
		if ferr := p.runs.FailRun(context.WithoutCancel(ctx), run); ferr != nil {
			logger.Error("night audit record failure", slog.Any("error", ferr))
		}
		logger.Error("night audit failed", slog.String("run_id", run.ID.String()), slog.Any("error", err))
		return DailySummaryFact{}, fmt.Errorf("nightaudit: hotel %d %s: %w", payload.HotelID, payload.AuditDate, err)
	}
	logger.Info("night audit completed",
		slog.String("run_id", run.ID.String()),
		slog.Int("charges_posted", run.ChargesPosted),
		slog.String("total_revenue", fact.TotalRevenue.StringFixed(2)),
	)
	p.afterCommit(ctx, payload, run, fact, logger)
	return fact, nil
}

// Status reports the audit state of a hotel day. Days never attempted are not_started.
func (p *Processor) Status(ctx context.Context, hotelID int64, date time.Time) (Run, error) {
	run, err := p.runs.GetRun(ctx, hotelID, date)
	if errors.Is(err, ErrRunNotFound) {
		return Run{HotelID: hotelID, AuditDate: date, Status: RunNotStarted}, nil
	}
	return run, err
}

func (p *Processor) postRoomCharges(ctx context.Context, tx TxRepository, payload Payload, date time.Time, logger *slog.Logger) (int, error) {
	reservations, err := tx.InHouseReservations(ctx, payload.HotelID, date)
	if err != nil {
		return 0, err
	}
	folios := tx.Folios()
	posted := 0
	for _, res := range reservations {
		if !res.RoomRate.IsPositive() {
			continue
		}
		exists, err := folios.RoomChargeExists(ctx, res.ReservationRoomID, date)
		if err != nil {
			return posted, err
		}
		if exists {
			continue
		}
		primary, err := folios.FindPrimaryFolio(ctx, res.ID)
		if errors.Is(err, folio.ErrFolioNotFound) {
			logger.Warn("night audit reservation without primary folio", slog.Int64("reservation_id", res.ID))
			continue
		}
		if err != nil {
			return posted, err
		}
		if primary.Status != folio.StatusOpen {
			logger.Warn("night audit primary folio not open", slog.Int64("reservation_id", res.ID), slog.Int64("folio_id", primary.ID))
			continue
		}
		serviceDate := date
		roomID := res.ReservationRoomID
		_, err = p.ledger.PostInTx(ctx, folios, folio.PostInput{
			FolioID:           primary.ID,
			Type:              folio.TxRoomPosting,
			Category:          folio.CategoryRoom,
			Description:       fmt.Sprintf("Room %s charge %s", res.RoomNumber, date.Format(dateLayout)),
			Amount:            res.RoomRate,
			TransactionDate:   p.now(),
			PostingDate:       date,
			ServiceDate:       &serviceDate,
			ReservationRoomID: &roomID,
			PostedBy:          payload.UserID,
			AllowClosedDay:    true,
		})
		if err != nil {
			return posted, fmt.Errorf("reservation %d: %w", res.ID, err)
		}
		posted++
	}
	return posted, nil
}

func (p *Processor) summarise(ctx context.Context, tx TxRepository, hotelID int64, date time.Time, runID uuid.UUID) (DailySummaryFact, error) {
	postings, err := tx.Folios().ListPostedOn(ctx, hotelID, date)
	if err != nil {
		return DailySummaryFact{}, err
	}
	rooms, err := tx.RoomCounts(ctx, hotelID, date)
	if err != nil {
		return DailySummaryFact{}, err
	}
	guests, err := tx.GuestActivity(ctx, hotelID, date)
	if err != nil {
		return DailySummaryFact{}, err
	}
	outstanding, err := tx.Folios().SumOpenBalances(ctx, hotelID)
	if err != nil {
		return DailySummaryFact{}, err
	}
	return BuildSummary(SummaryInput{
		HotelID:     hotelID,
		AuditDate:   date,
		Postings:    postings,
		Rooms:       rooms,
		Guests:      guests,
		Outstanding: outstanding,
		RunID:       runID,
		GeneratedAt: p.now(),
	}), nil
}

func (p *Processor) afterCommit(ctx context.Context, payload Payload, run Run, fact DailySummaryFact, logger *slog.Logger) {
	if p.notifier != nil {
		if err := p.notifier.Bump(ctx); err != nil {
			logger.Warn("night audit change notify", slog.Any("error", err))
		}
	}
	if p.audit != nil {
		err := p.audit.Record(ctx, shared.AuditLog{
			ActorID:  payload.UserID,
			HotelID:  payload.HotelID,
			Action:   "nightaudit.complete",
			Entity:   "night_audit_run",
			EntityID: run.ID.String(),
			Meta: map[string]any{
				"audit_date":     payload.AuditDate,
				"charges_posted": run.ChargesPosted,
			},
			At: p.now(),
		})
		if err != nil {
			logger.Warn("night audit audit record", slog.Any("error", err))
		}
	}
	if payload.SkipReport || p.reporter == nil {
		return
	}
	if err := p.reporter.SendDailySummaryEmail(ctx, fact); err != nil {
		logger.Warn("night audit report hand-off", slog.Any("error", err))
	}
}

func (p *Processor) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.Default()
}
