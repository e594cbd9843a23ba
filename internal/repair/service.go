package repair

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/odyssey-erp/odyssey-folio/internal/folio"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

// Finder locates candidate violations.
type Finder interface {
	FindVoidedPaymentOrphans(ctx context.Context, hotelID *int64, limit int) ([]Candidate, error)
	FindTransferPairMismatches(ctx context.Context, hotelID *int64, limit int) ([]Candidate, error)
}

// Ledger is the write path used to fix violations.
type Ledger interface {
	GetTransaction(ctx context.Context, id int64) (folio.Transaction, []folio.Transaction, error)
	VoidOrphanedTransfers(ctx context.Context, in folio.RepairInput) (folio.VoidResult, error)
}

// Service runs detection and repair sweeps.
type Service struct {
	finder Finder
	ledger Ledger
	logger *slog.Logger
}

// NewService constructs Service.
func NewService(finder Finder, ledger Ledger, logger *slog.Logger) *Service {
	return &Service{finder: finder, ledger: ledger, logger: logger}
}

// Detect lists candidates of both kinds without changing anything.
func (s *Service) Detect(ctx context.Context, hotelID *int64, limit int) ([]Candidate, error) {
	orphans, err := s.finder.FindVoidedPaymentOrphans(ctx, hotelID, limit)
	if err != nil {
		return nil, fmt.Errorf("repair: find voided payment orphans: %w", err)
	}
	mismatches, err := s.finder.FindTransferPairMismatches(ctx, hotelID, limit)
	if err != nil {
		return nil, fmt.Errorf("repair: find transfer pair mismatches: %w", err)
	}
	all := append(orphans, mismatches...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].SourceID != all[j].SourceID {
			return all[i].SourceID < all[j].SourceID
		}
		return all[i].LinkedID < all[j].LinkedID
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Run detects violations and, unless DryRun, voids the rows left live through
// the ledger. Candidates fixed earlier in the same run, or by a concurrent
// writer, are skipped, so a second run finds nothing to do.
func (s *Service) Run(ctx context.Context, opts Options) (Report, error) {
	if !opts.DryRun && opts.Actor <= 0 {
		return Report{}, ErrActorRequired
	}
	candidates, err := s.Detect(ctx, opts.HotelID, opts.Limit)
	if err != nil {
		return Report{}, err
	}
	report := Report{DryRun: opts.DryRun, Outcomes: make([]Outcome, 0, len(candidates))}
	for _, c := range candidates {
		outcome := s.handle(ctx, c, opts)
		report.Outcomes = append(report.Outcomes, outcome)
		switch outcome.Status {
		case OutcomeFixed:
			report.Found++
			report.Fixed++
		case OutcomeWouldFix:
			report.Found++
		case OutcomeSkipped:
			report.Skipped++
		case OutcomeFailed:
			report.Found++
			report.Failed++
			if !opts.ContinueOnError {
				return report, fmt.Errorf("%w: %s %d: %s", ErrAborted, c.Kind, c.SourceID, outcome.Error)
			}
		}
	}
	s.log().Info("ledger repair finished",
		slog.Bool("dry_run", opts.DryRun),
		slog.Int("found", report.Found),
		slog.Int("fixed", report.Fixed),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *Service) handle(ctx context.Context, c Candidate, opts Options) Outcome {
	outcome := Outcome{Candidate: c}
	logger := s.log().With(
		slog.String("kind", string(c.Kind)),
		slog.Int64("hotel_id", c.HotelID),
		slog.Int64("source_id", c.SourceID),
		slog.Int64("linked_id", c.LinkedID),
	)
	source, _, err := s.ledger.GetTransaction(ctx, c.SourceID)
	if err != nil {
		outcome.Status = OutcomeFailed
		outcome.Error = err.Error()
		logger.Error("ledger repair load source", slog.Any("error", err))
		return outcome
	}
	linked, _, err := s.ledger.GetTransaction(ctx, c.LinkedID)
	if err != nil {
		outcome.Status = OutcomeFailed
		outcome.Error = err.Error()
		logger.Error("ledger repair load linked", slog.Any("error", err))
		return outcome
	}
	outcome.Before = []RowState{stateOf(source), stateOf(linked)}
	if !source.IsVoided || linked.IsVoided {
		outcome.Status = OutcomeSkipped
		return outcome
	}
	logger.Warn("ledger consistency violation",
		slog.Any("before", outcome.Before),
		slog.Any("error", shared.ErrConsistencyViolation),
	)
	if opts.DryRun {
		outcome.Status = OutcomeWouldFix
		return outcome
	}
	result, err := s.ledger.VoidOrphanedTransfers(ctx, folio.RepairInput{TransactionID: source.ID, Actor: opts.Actor})
	if err != nil {
		outcome.Status = OutcomeFailed
		outcome.Error = err.Error()
		logger.Error("ledger repair void", slog.Any("error", err))
		return outcome
	}
	for _, txn := range result.Voided {
		outcome.After = append(outcome.After, stateOf(txn))
	}
	outcome.Status = OutcomeFixed
	logger.Info("ledger consistency repaired", slog.Any("after", outcome.After))
	return outcome
}

func stateOf(txn folio.Transaction) RowState {
	return RowState{
		ID:       txn.ID,
		Number:   txn.TransactionNumber,
		FolioID:  txn.FolioID,
		Type:     string(txn.Type),
		Category: string(txn.Category),
		Total:    txn.TotalAmount.StringFixed(2),
		Voided:   txn.IsVoided,
	}
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
