package folio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-folio/internal/shared"
	"github.com/odyssey-erp/odyssey-folio/internal/tax"
)

// Service owns every write into folios and folio transactions.
type Service struct {
	repo     RepositoryPort
	taxes    TaxResolver
	audit    AuditPort
	notifier ChangeNotifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, taxes TaxResolver, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, taxes: taxes, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithNotifier registers a read-model invalidator called after each commit.
func (s *Service) WithNotifier(n ChangeNotifier) {
	s.notifier = n
}

// PostTransaction inserts a posting and refreshes the folio totals atomically.
func (s *Service) PostTransaction(ctx context.Context, in PostInput) (Transaction, error) {
	var posted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		posted, err = s.PostInTx(ctx, tx, in)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  in.PostedBy,
		HotelID:  posted.HotelID,
		Action:   "folio.transaction.post",
		Entity:   "folio_transaction",
		EntityID: formatID(posted.ID),
		Meta: map[string]any{
			"number":   posted.TransactionNumber,
			"folio_id": posted.FolioID,
			"type":     string(posted.Type),
			"total":    posted.TotalAmount.String(),
		},
	})
	return posted, nil
}

// PostInTx posts inside a unit of work owned by the caller.
func (s *Service) PostInTx(ctx context.Context, tx TxRepository, in PostInput) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	f, err := s.lockOne(ctx, tx, in.FolioID)
	if err != nil {
		return Transaction{}, err
	}
	if f.Status != StatusOpen {
		return Transaction{}, ErrFolioClosed
	}
	postingDate := s.postingDate(in.PostingDate)
	if !in.AllowClosedDay {
		if err := s.ensureDayOpen(ctx, tx, f.HotelID, postingDate); err != nil {
			return Transaction{}, err
		}
	}
	if in.Type == TxRoomPosting {
		exists, err := tx.RoomChargeExists(ctx, *in.ReservationRoomID, dateOnly(*in.ServiceDate))
		if err != nil {
			return Transaction{}, err
		}
		if exists {
			return Transaction{}, ErrDuplicateRoomCharge
		}
	}

	taxAmount := decimal.Zero
	if isTaxable(in.Type) && !in.SkipTaxes && s.taxes != nil {
		apps, err := s.taxes.ResolveCharge(ctx, tax.ChargeInput{
			HotelID:  f.HotelID,
			Category: string(in.Category),
			Gross:    in.Amount,
			Discount: in.Discount,
			RateIDs:  in.TaxRateIDs,
		})
		if err != nil {
			return Transaction{}, err
		}
		taxAmount = tax.Sum(apps)
	}

	sign := signFor(in.Type)
	amount := in.Amount.Round(2).Mul(sign)
	service := in.ServiceChargeAmount.Round(2).Mul(sign)
	taxAmount = taxAmount.Round(2).Mul(sign)
	txnDate := in.TransactionDate
	if txnDate.IsZero() {
		txnDate = s.now()
	}
	row := Transaction{
		FolioID:             f.ID,
		ReservationID:       f.ReservationID,
		HotelID:             f.HotelID,
		Type:                in.Type,
		Category:            in.Category,
		AppliesTo:           in.Type,
		Description:         in.Description,
		Amount:              amount,
		TaxAmount:           taxAmount,
		ServiceChargeAmount: service,
		TotalAmount:         amount.Add(taxAmount).Add(service),
		CurrencyCode:        f.CurrencyCode,
		ExchangeRate:        f.ExchangeRate,
		TransactionDate:     txnDate,
		PostingDate:         postingDate,
		ServiceDate:         datePtr(in.ServiceDate),
		ReservationRoomID:   in.ReservationRoomID,
		PaymentMethodID:     in.PaymentMethodID,
		IsPosted:            true,
		PostedBy:            in.PostedBy,
	}
	posted, err := tx.InsertTransaction(ctx, row)
	if err != nil {
		return Transaction{}, err
	}

	if in.Discount.IsPositive() {
		discount := in.Discount.Round(2).Neg()
		_, err := tx.InsertTransaction(ctx, Transaction{
			FolioID:               f.ID,
			ReservationID:         f.ReservationID,
			HotelID:               f.HotelID,
			Type:                  TxDiscount,
			Category:              in.Category,
			AppliesTo:             TxDiscount,
			Description:           "Discount on " + posted.TransactionNumber,
			Amount:                discount,
			TaxAmount:             decimal.Zero,
			ServiceChargeAmount:   decimal.Zero,
			TotalAmount:           discount,
			CurrencyCode:          f.CurrencyCode,
			ExchangeRate:          f.ExchangeRate,
			TransactionDate:       txnDate,
			PostingDate:           postingDate,
			IsPosted:              true,
			OriginalTransactionID: &posted.ID,
			PostedBy:              in.PostedBy,
		})
		if err != nil {
			return Transaction{}, err
		}
	}

	if _, err := s.recompute(ctx, tx, f); err != nil {
		return Transaction{}, err
	}
	return posted, nil
}

// VoidTransaction voids a transaction together with its linked transfer,
// correction and discount rows, all in one unit of work.
func (s *Service) VoidTransaction(ctx context.Context, in VoidInput) (VoidResult, error) {
	if err := validateStruct("void", in); err != nil {
		return VoidResult{}, err
	}
	var result VoidResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		target, err := tx.GetTransaction(ctx, in.TransactionID)
		if err != nil {
			return err
		}
		if target.IsVoided {
			return ErrAlreadyVoided
		}
		linked, err := s.collectLinked(ctx, tx, target)
		if err != nil {
			return err
		}
		reasons := map[int64]string{target.ID: in.Reason}
		for _, txn := range linked {
			reasons[txn.ID] = fmt.Sprintf("linked to void of %s: %s", target.TransactionNumber, in.Reason)
		}
		result, err = s.voidSet(ctx, tx, append([]Transaction{target}, linked...), reasons, in.VoidedBy, in.Override)
		return err
	})
	if err != nil {
		return VoidResult{}, err
	}
	ids := make([]int64, 0, len(result.Voided))
	for _, txn := range result.Voided {
		ids = append(ids, txn.ID)
	}
	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  in.VoidedBy,
		HotelID:  hotelOf(result.Folios),
		Action:   "folio.transaction.void",
		Entity:   "folio_transaction",
		EntityID: formatID(in.TransactionID),
		Meta: map[string]any{
			"reason":    in.Reason,
			"voided":    ids,
			"overrides": in.Override,
		},
	})
	return result, nil
}

// VoidOrphanedTransfers voids the transfer pairs still attached to an already
// voided transaction. It returns the rows it voided, none when consistent.
func (s *Service) VoidOrphanedTransfers(ctx context.Context, in RepairInput) (VoidResult, error) {
	if err := validateStruct("repair", in); err != nil {
		return VoidResult{}, err
	}
	var result VoidResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		source, err := tx.GetTransaction(ctx, in.TransactionID)
		if err != nil {
			return err
		}
		if !source.IsVoided {
			return ErrNotVoided
		}
		linked, err := s.collectLinked(ctx, tx, source)
		if err != nil {
			return err
		}
		if len(linked) == 0 {
			return nil
		}
		reason := fmt.Sprintf("voided by repair: linked %s %s (id %d) was voided", source.Type, source.TransactionNumber, source.ID)
		reasons := make(map[int64]string, len(linked))
		for _, txn := range linked {
			reasons[txn.ID] = reason
		}
		result, err = s.voidSet(ctx, tx, linked, reasons, in.Actor, true, source.FolioID)
		return err
	})
	if err != nil {
		return VoidResult{}, err
	}
	if len(result.Voided) > 0 {
		s.afterCommit(ctx, shared.AuditLog{
			ActorID:  in.Actor,
			HotelID:  hotelOf(result.Folios),
			Action:   "folio.transaction.repair_void",
			Entity:   "folio_transaction",
			EntityID: formatID(in.TransactionID),
			Meta:     map[string]any{"voided": len(result.Voided)},
		})
	}
	return result, nil
}

// TransferTransaction moves all or part of a transaction to another folio as a
// transfer_out / transfer_in pair.
func (s *Service) TransferTransaction(ctx context.Context, in TransferInput) (TransferResult, error) {
	if err := validateStruct("transfer", in); err != nil {
		return TransferResult{}, err
	}
	if in.Amount.IsNegative() {
		return TransferResult{}, fmt.Errorf("%w: negative amount", ErrInvalidTransfer)
	}
	var result TransferResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		src, err := tx.GetTransaction(ctx, in.TransactionID)
		if err != nil {
			return err
		}
		switch {
		case src.IsVoided:
			return fmt.Errorf("%w: source is voided", ErrInvalidTransfer)
		case src.IsTransferLeg():
			return fmt.Errorf("%w: transfer legs cannot be transferred again", ErrInvalidTransfer)
		case src.FolioID == in.DestinationFolioID:
			return fmt.Errorf("%w: destination equals source folio", ErrInvalidTransfer)
		case src.TotalAmount.IsZero():
			return fmt.Errorf("%w: nothing to transfer", ErrInvalidTransfer)
		}

		folios, err := tx.LockFolios(ctx, []int64{src.FolioID, in.DestinationFolioID})
		if err != nil {
			return err
		}
		source, ok := folios[src.FolioID]
		if !ok {
			return ErrFolioNotFound
		}
		dest, ok := folios[in.DestinationFolioID]
		if !ok {
			return ErrFolioNotFound
		}
		if source.Status != StatusOpen || dest.Status != StatusOpen {
			return ErrFolioClosed
		}
		postingDate := s.postingDate(time.Time{})
		for _, hotelID := range uniqueHotels(source, dest) {
			if err := s.ensureDayOpen(ctx, tx, hotelID, postingDate); err != nil {
				return err
			}
		}

		remaining, err := s.transferable(ctx, tx, src)
		if err != nil {
			return err
		}
		amount := in.Amount.Round(2)
		if amount.IsZero() {
			amount = remaining
		}
		if !amount.IsPositive() || amount.GreaterThan(remaining) {
			return fmt.Errorf("%w: amount %s exceeds transferable %s", ErrInvalidTransfer, amount, remaining)
		}

		outTotal := amount.Mul(decimal.NewFromInt(int64(-src.TotalAmount.Sign())))
		ratio := amount.Div(src.TotalAmount.Abs())
		outTax := src.TaxAmount.Mul(ratio).Round(2).Neg()
		outService := src.ServiceChargeAmount.Mul(ratio).Round(2).Neg()
		outAmount := outTotal.Sub(outTax).Sub(outService)

		description := in.Description
		if description == "" {
			description = src.Description
		}
		now := s.now()
		out, err := tx.InsertTransaction(ctx, Transaction{
			FolioID:               source.ID,
			ReservationID:         source.ReservationID,
			HotelID:               source.HotelID,
			Type:                  TxTransfer,
			Category:              CategoryTransferOut,
			AppliesTo:             bucketOf(src),
			Description:           fmt.Sprintf("Transfer to %s: %s", dest.FolioNumber, description),
			Amount:                outAmount,
			TaxAmount:             outTax,
			ServiceChargeAmount:   outService,
			TotalAmount:           outTotal,
			CurrencyCode:          source.CurrencyCode,
			ExchangeRate:          source.ExchangeRate,
			TransactionDate:       now,
			PostingDate:           postingDate,
			PaymentMethodID:       src.PaymentMethodID,
			IsPosted:              true,
			OriginalTransactionID: &src.ID,
			TransferredToFolioID:  &dest.ID,
			PostedBy:              in.PostedBy,
		})
		if err != nil {
			return err
		}
		inbound, err := tx.InsertTransaction(ctx, Transaction{
			FolioID:               dest.ID,
			ReservationID:         dest.ReservationID,
			HotelID:               dest.HotelID,
			Type:                  TxTransfer,
			Category:              CategoryTransferIn,
			AppliesTo:             bucketOf(src),
			Description:           fmt.Sprintf("Transfer from %s: %s", source.FolioNumber, description),
			Amount:                outAmount.Neg(),
			TaxAmount:             outTax.Neg(),
			ServiceChargeAmount:   outService.Neg(),
			TotalAmount:           outTotal.Neg(),
			CurrencyCode:          dest.CurrencyCode,
			ExchangeRate:          dest.ExchangeRate,
			TransactionDate:       now,
			PostingDate:           postingDate,
			PaymentMethodID:       src.PaymentMethodID,
			IsPosted:              true,
			OriginalTransactionID: &out.ID,
			PostedBy:              in.PostedBy,
		})
		if err != nil {
			return err
		}

		if result.Source, err = s.recompute(ctx, tx, source); err != nil {
			return err
		}
		if result.Destination, err = s.recompute(ctx, tx, dest); err != nil {
			return err
		}
		result.TransferOut = out
		result.TransferIn = inbound
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}
	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  in.PostedBy,
		HotelID:  result.Source.HotelID,
		Action:   "folio.transaction.transfer",
		Entity:   "folio_transaction",
		EntityID: formatID(in.TransactionID),
		Meta: map[string]any{
			"transfer_out": result.TransferOut.ID,
			"transfer_in":  result.TransferIn.ID,
			"destination":  in.DestinationFolioID,
			"amount":       result.TransferIn.TotalAmount.String(),
		},
	})
	return result, nil
}

// CorrectTransaction posts a correction row carrying the difference between the
// original total and the corrected amount. The original row is never edited
// beyond its corrected_transaction_id link.
func (s *Service) CorrectTransaction(ctx context.Context, in CorrectInput) (Transaction, error) {
	if err := validateStruct("correction", in); err != nil {
		return Transaction{}, err
	}
	if in.NewAmount.IsNegative() {
		return Transaction{}, fmt.Errorf("%w: negative amount", ErrInvalidCorrection)
	}
	var correction Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orig, err := tx.GetTransaction(ctx, in.TransactionID)
		if err != nil {
			return err
		}
		switch {
		case orig.IsVoided:
			return ErrAlreadyVoided
		case orig.CorrectedTransactionID != nil:
			return ErrAlreadyCorrected
		case orig.Type == TxTransfer || orig.Type == TxCorrection:
			return fmt.Errorf("%w: %s rows cannot be corrected", ErrInvalidCorrection, orig.Type)
		}
		f, err := s.lockOne(ctx, tx, orig.FolioID)
		if err != nil {
			return err
		}
		if f.Status != StatusOpen {
			return ErrFolioClosed
		}
		postingDate := s.postingDate(time.Time{})
		if err := s.ensureDayOpen(ctx, tx, f.HotelID, postingDate); err != nil {
			return err
		}

		bucket := bucketOf(orig)
		newTotal := in.NewAmount.Round(2).Mul(signFor(bucket))
		diff := newTotal.Sub(orig.TotalAmount)
		if diff.IsZero() {
			return fmt.Errorf("%w: amount unchanged", ErrInvalidCorrection)
		}
		correction, err = tx.InsertTransaction(ctx, Transaction{
			FolioID:               f.ID,
			ReservationID:         f.ReservationID,
			HotelID:               f.HotelID,
			Type:                  TxCorrection,
			Category:              CategoryCorrection,
			AppliesTo:             bucket,
			Description:           fmt.Sprintf("Correction of %s: %s", orig.TransactionNumber, in.Reason),
			Amount:                diff,
			TaxAmount:             decimal.Zero,
			ServiceChargeAmount:   decimal.Zero,
			TotalAmount:           diff,
			CurrencyCode:          f.CurrencyCode,
			ExchangeRate:          f.ExchangeRate,
			TransactionDate:       s.now(),
			PostingDate:           postingDate,
			PaymentMethodID:       orig.PaymentMethodID,
			IsPosted:              true,
			OriginalTransactionID: &orig.ID,
			PostedBy:              in.PostedBy,
		})
		if err != nil {
			return err
		}
		if err := tx.SetCorrectedBy(ctx, orig.ID, &correction.ID); err != nil {
			return err
		}
		_, err = s.recompute(ctx, tx, f)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.afterCommit(ctx, shared.AuditLog{
		ActorID:  in.PostedBy,
		HotelID:  correction.HotelID,
		Action:   "folio.transaction.correct",
		Entity:   "folio_transaction",
		EntityID: formatID(in.TransactionID),
		Meta: map[string]any{
			"correction_id": correction.ID,
			"difference":    correction.TotalAmount.String(),
			"reason":        in.Reason,
		},
	})
	return correction, nil
}

// RecomputeFolio re-derives a folio's totals from its history.
func (s *Service) RecomputeFolio(ctx context.Context, folioID int64) (Folio, error) {
	var f Folio
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := s.lockOne(ctx, tx, folioID)
		if err != nil {
			return err
		}
		f, err = s.recompute(ctx, tx, locked)
		return err
	})
	return f, err
}

// ListTransactions returns the full history of a folio, voided rows included.
func (s *Service) ListTransactions(ctx context.Context, folioID int64) ([]Transaction, error) {
	var txns []Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txns, err = tx.ListFolioTransactions(ctx, folioID)
		return err
	})
	return txns, err
}

// GetTransaction loads one row together with the rows linked to it.
func (s *Service) GetTransaction(ctx context.Context, id int64) (Transaction, []Transaction, error) {
	var (
		txn    Transaction
		linked []Transaction
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if txn, err = tx.GetTransaction(ctx, id); err != nil {
			return err
		}
		linked, err = tx.ListLinkedTransactions(ctx, id)
		return err
	})
	return txn, linked, err
}

// collectLinked walks the rows that must share the voided status of root:
// transfer, correction and discount rows referencing it (recursively) and, for
// a transfer_in, its transfer_out.
func (s *Service) collectLinked(ctx context.Context, tx TxRepository, root Transaction) ([]Transaction, error) {
	seen := map[int64]struct{}{root.ID: {}}
	queue := []Transaction{root}
	var out []Transaction
	add := func(txn Transaction) {
		if txn.IsVoided {
			return
		}
		if _, ok := seen[txn.ID]; ok {
			return
		}
		seen[txn.ID] = struct{}{}
		out = append(out, txn)
		queue = append(queue, txn)
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		children, err := tx.ListLinkedTransactions(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			switch child.Type {
			case TxTransfer, TxCorrection, TxDiscount:
				add(child)
			}
		}
		if current.Category == CategoryTransferIn && current.OriginalTransactionID != nil {
			parent, err := tx.GetTransaction(ctx, *current.OriginalTransactionID)
			if err != nil && !errors.Is(err, ErrTransactionNotFound) {
				return nil, err
			}
			if err == nil && parent.Type == TxTransfer {
				add(parent)
			}
		}
	}
	return out, nil
}

// voidSet voids rows and recomputes their folios. Folios listed in also are
// locked and recomputed as well.
func (s *Service) voidSet(ctx context.Context, tx TxRepository, rows []Transaction, reasons map[int64]string, actor int64, override bool, also ...int64) (VoidResult, error) {
	folioIDs := make([]int64, 0, len(rows)+len(also))
	for _, txn := range rows {
		folioIDs = append(folioIDs, txn.FolioID)
	}
	folioIDs = append(folioIDs, also...)
	folios, err := tx.LockFolios(ctx, uniqueIDs(folioIDs))
	if err != nil {
		return VoidResult{}, err
	}
	for _, id := range uniqueIDs(folioIDs) {
		f, ok := folios[id]
		if !ok {
			return VoidResult{}, ErrFolioNotFound
		}
		if f.Status != StatusOpen && !override {
			return VoidResult{}, ErrFolioClosed
		}
	}

	now := s.now()
	result := VoidResult{Voided: make([]Transaction, 0, len(rows))}
	for _, txn := range rows {
		reason := reasons[txn.ID]
		if err := tx.MarkVoided(ctx, txn.ID, actor, now, reason); err != nil {
			return VoidResult{}, err
		}
		if txn.Type == TxCorrection && txn.OriginalTransactionID != nil {
			if err := tx.SetCorrectedBy(ctx, *txn.OriginalTransactionID, nil); err != nil && !errors.Is(err, ErrTransactionNotFound) {
				return VoidResult{}, err
			}
		}
		voidedBy := actor
		at := now
		txn.IsVoided = true
		txn.VoidedAt = &at
		txn.VoidedBy = &voidedBy
		txn.VoidReason = reason
		result.Voided = append(result.Voided, txn)
	}
	for _, id := range uniqueIDs(folioIDs) {
		refreshed, err := s.recompute(ctx, tx, folios[id])
		if err != nil {
			return VoidResult{}, err
		}
		result.Folios = append(result.Folios, refreshed)
	}
	return result, nil
}

// transferable is the magnitude of src not yet moved by live transfer_out rows.
func (s *Service) transferable(ctx context.Context, tx TxRepository, src Transaction) (decimal.Decimal, error) {
	children, err := tx.ListLinkedTransactions(ctx, src.ID)
	if err != nil {
		return decimal.Zero, err
	}
	remaining := src.TotalAmount
	for _, child := range children {
		if child.Type == TxTransfer && !child.IsVoided {
			remaining = remaining.Add(child.TotalAmount)
		}
	}
	if remaining.Sign() != 0 && remaining.Sign() != src.TotalAmount.Sign() {
		return decimal.Zero, nil
	}
	return remaining.Abs(), nil
}

func (s *Service) recompute(ctx context.Context, tx TxRepository, f Folio) (Folio, error) {
	txns, err := tx.ListFolioTransactions(ctx, f.ID)
	if err != nil {
		return Folio{}, err
	}
	totals := ComputeTotals(txns)
	settlement := settlementFor(f.SettlementStatus, totals)
	if err := tx.UpdateFolioTotals(ctx, f.ID, totals, settlement); err != nil {
		return Folio{}, err
	}
	f.Totals = totals
	f.SettlementStatus = settlement
	return f, nil
}

func (s *Service) lockOne(ctx context.Context, tx TxRepository, folioID int64) (Folio, error) {
	folios, err := tx.LockFolios(ctx, []int64{folioID})
	if err != nil {
		return Folio{}, err
	}
	f, ok := folios[folioID]
	if !ok {
		return Folio{}, ErrFolioNotFound
	}
	return f, nil
}

func (s *Service) ensureDayOpen(ctx context.Context, tx TxRepository, hotelID int64, date time.Time) error {
	closed, err := tx.IsBusinessDayClosed(ctx, hotelID, date)
	if err != nil {
		return err
	}
	if closed {
		return fmt.Errorf("%w: %s", ErrBusinessDayClosed, date.Format("2006-01-02"))
	}
	return nil
}

func (s *Service) postingDate(requested time.Time) time.Time {
	if requested.IsZero() {
		return dateOnly(s.now())
	}
	return dateOnly(requested)
}

func (s *Service) afterCommit(ctx context.Context, log shared.AuditLog) {
	log.At = s.now()
	if s.audit != nil {
		if err := s.audit.Record(ctx, log); err != nil {
			s.log().Warn("folio audit record", slog.String("action", log.Action), slog.Any("error", err))
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Bump(ctx); err != nil {
			s.log().Warn("folio change notify", slog.String("action", log.Action), slog.Any("error", err))
		}
	}
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := dateOnly(*t)
	return &d
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func uniqueHotels(folios ...Folio) []int64 {
	ids := make([]int64, 0, len(folios))
	for _, f := range folios {
		ids = append(ids, f.HotelID)
	}
	return uniqueIDs(ids)
}

func hotelOf(folios []Folio) int64 {
	if len(folios) == 0 {
		return 0
	}
	return folios[0].HotelID
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
