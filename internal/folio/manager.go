package folio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

const defaultCurrency = "USD"

// OpenFolio opens an empty folio. A reservation guest holds at most one primary folio.
func (s *Service) OpenFolio(ctx context.Context, in OpenInput) (Folio, error) {
	if err := validateStruct("folio", in); err != nil {
		return Folio{}, err
	}
	if in.CreditLimit.IsNegative() {
		return Folio{}, errors.New("folio: credit limit cannot be negative")
	}
	var created Folio
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.IsPrimary {
			existing, err := tx.FindPrimaryFolio(ctx, in.ReservationID)
			switch {
			case err == nil && existing.GuestID == in.GuestID:
				return ErrPrimaryFolioExists
			case err != nil && !errors.Is(err, ErrFolioNotFound):
				return err
			}
		}
		var err error
		created, err = tx.InsertFolio(ctx, s.newFolio(in))
		return err
	})
	if err != nil {
		return Folio{}, err
	}
	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  in.OpenedBy,
		HotelID:  created.HotelID,
		Action:   "folio.open",
		Entity:   "folio",
		EntityID: formatID(created.ID),
		Meta: map[string]any{
			"number":      created.FolioNumber,
			"reservation": created.ReservationID,
			"primary":     created.IsPrimary,
		},
	})
	return created, nil
}

// AddGuestFolio opens an individual folio for an extra guest and copies the
// room postings already on the reservation's primary folio.
func (s *Service) AddGuestFolio(ctx context.Context, in AddGuestInput) (Folio, []Transaction, error) {
	if err := validateStruct("guest folio", in); err != nil {
		return Folio{}, nil, err
	}
	var (
		created Folio
		copies  []Transaction
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.FindGuestFolio(ctx, in.ReservationID, in.GuestID); err == nil {
			return ErrGuestFolioExists
		} else if !errors.Is(err, ErrFolioNotFound) {
			return err
		}
		primary, err := tx.FindPrimaryFolio(ctx, in.ReservationID)
		if errors.Is(err, ErrFolioNotFound) {
			return ErrPrimaryFolioMissing
		}
		if err != nil {
			return err
		}
		history, err := tx.ListFolioTransactions(ctx, primary.ID)
		if err != nil {
			return err
		}

		f := s.newFolio(OpenInput{
			HotelID:       primary.HotelID,
			ReservationID: in.ReservationID,
			GuestID:       in.GuestID,
			Type:          TypeIndividual,
			CurrencyCode:  primary.CurrencyCode,
			ExchangeRate:  primary.ExchangeRate,
		})
		created, err = tx.InsertFolio(ctx, f)
		if err != nil {
			return err
		}
		if _, err := s.lockOne(ctx, tx, created.ID); err != nil {
			return err
		}

		for _, src := range history {
			if src.Type != TxRoomPosting || src.IsVoided || src.IsCopy() {
				continue
			}
			copied := src
			copied.ID = 0
			copied.TransactionNumber = ""
			copied.FolioID = created.ID
			copied.Description = fmt.Sprintf("Copy from %s: %s", primary.FolioNumber, src.Description)
			copied.OriginalTransactionID = &src.ID
			copied.CorrectedTransactionID = nil
			copied.TransferredToFolioID = nil
			copied.PostedBy = in.OpenedBy
			copied.TransactionDate = s.now()
			row, err := tx.InsertTransaction(ctx, copied)
			if err != nil {
				return err
			}
			copies = append(copies, row)
		}
		created, err = s.recompute(ctx, tx, created)
		return err
	})
	if err != nil {
		return Folio{}, nil, err
	}
	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  in.OpenedBy,
		HotelID:  created.HotelID,
		Action:   "folio.open_guest",
		Entity:   "folio",
		EntityID: formatID(created.ID),
		Meta: map[string]any{
			"number": created.FolioNumber,
			"guest":  in.GuestID,
			"copied": len(copies),
		},
	})
	return created, copies, nil
}

// CloseFolio closes an open folio. A non-zero balance blocks the close unless
// it is written off first.
func (s *Service) CloseFolio(ctx context.Context, in CloseInput) (Folio, error) {
	if err := validateStruct("close", in); err != nil {
		return Folio{}, err
	}
	var (
		closed     Folio
		writtenOff decimal.Decimal
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		f, err := s.lockOne(ctx, tx, in.FolioID)
		if err != nil {
			return err
		}
		if f.Status != StatusOpen {
			return ErrFolioClosed
		}
		f, err = s.recompute(ctx, tx, f)
		if err != nil {
			return err
		}
		balance := f.Balance()
		if !balance.IsZero() {
			if !in.WriteOff {
				return fmt.Errorf("%w: balance %s", ErrOutstandingBalance, balance.StringFixed(2))
			}
			postingDate := s.postingDate(s.now())
			if err := s.ensureDayOpen(ctx, tx, f.HotelID, postingDate); err != nil {
				return err
			}
			reason := in.WriteOffReason
			if reason == "" {
				reason = "balance written off at close"
			}
			_, err := tx.InsertTransaction(ctx, Transaction{
				FolioID:             f.ID,
				ReservationID:       f.ReservationID,
				HotelID:             f.HotelID,
				Type:                TxAdjustment,
				Category:            CategoryWriteOff,
				AppliesTo:           TxAdjustment,
				Description:         reason,
				Amount:              balance.Neg(),
				TaxAmount:           decimal.Zero,
				ServiceChargeAmount: decimal.Zero,
				TotalAmount:         balance.Neg(),
				CurrencyCode:        f.CurrencyCode,
				ExchangeRate:        f.ExchangeRate,
				TransactionDate:     s.now(),
				PostingDate:         postingDate,
				IsPosted:            true,
				PostedBy:            in.ClosedBy,
			})
			if err != nil {
				return err
			}
			writtenOff = balance
			if f, err = s.recompute(ctx, tx, f); err != nil {
				return err
			}
		}
		closedAt := s.now()
		final := f.Balance()
		if err := tx.MarkFolioClosed(ctx, f.ID, in.ClosedBy, closedAt, final); err != nil {
			return err
		}
		closedBy := in.ClosedBy
		f.Status = StatusClosed
		f.ClosedDate = &closedAt
		f.ClosedBy = &closedBy
		f.FinalBalance = &final
		closed = f
		return nil
	})
	if err != nil {
		return Folio{}, err
	}
	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  in.ClosedBy,
		HotelID:  closed.HotelID,
		Action:   "folio.close",
		Entity:   "folio",
		EntityID: formatID(closed.ID),
		Meta: map[string]any{
			"number":      closed.FolioNumber,
			"written_off": writtenOff.StringFixed(2),
		},
	})
	return closed, nil
}

// CheckCreditLimit flags folios whose balance runs over their credit limit.
// It never blocks postings.
func (s *Service) CheckCreditLimit(ctx context.Context, folioID int64) (bool, error) {
	var exceeded bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		f, err := s.lockOne(ctx, tx, folioID)
		if err != nil {
			return err
		}
		exceeded = f.CreditLimit.IsPositive() && f.Balance().GreaterThan(f.CreditLimit)
		if exceeded == f.CreditLimitExceeded {
			return nil
		}
		return tx.UpdateCreditFlag(ctx, f.ID, exceeded)
	})
	if err != nil {
		return false, err
	}
	if exceeded {
		s.log().Info("folio credit limit exceeded", slog.Int64("folio_id", folioID))
	}
	return exceeded, nil
}

// GetFolio loads a folio with its stored totals.
func (s *Service) GetFolio(ctx context.Context, id int64) (Folio, error) {
	var f Folio
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		f, err = tx.GetFolio(ctx, id)
		return err
	})
	return f, err
}

func (s *Service) newFolio(in OpenInput) Folio {
	currency := in.CurrencyCode
	if currency == "" {
		currency = defaultCurrency
	}
	rate := in.ExchangeRate
	if !rate.IsPositive() {
		rate = decimal.NewFromInt(1)
	}
	now := s.now()
	return Folio{
		HotelID:          in.HotelID,
		ReservationID:    in.ReservationID,
		GuestID:          in.GuestID,
		CompanyAccountID: in.CompanyAccountID,
		Type:             in.Type,
		IsPrimary:        in.IsPrimary,
		Status:           StatusOpen,
		SettlementStatus: SettlementPending,
		Totals:           ComputeTotals(nil),
		CreditLimit:      in.CreditLimit.Round(2),
		CurrencyCode:     currency,
		ExchangeRate:     rate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
