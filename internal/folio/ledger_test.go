package folio_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-folio/internal/folio"
	"github.com/odyssey-erp/odyssey-folio/internal/folio/foliotest"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
	"github.com/odyssey-erp/odyssey-folio/internal/tax"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type staticRates struct {
	rates map[int64]tax.Rate
	room  []int64
}

func (s staticRates) RatesByID(_ context.Context, ids []int64) ([]tax.Rate, error) {
	var out []tax.Rate
	for _, id := range ids {
		if r, ok := s.rates[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s staticRates) RateIDsForCategory(_ context.Context, _ int64, category string) ([]int64, error) {
	if category == string(folio.CategoryRoom) {
		return s.room, nil
	}
	return nil, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type countingNotifier struct {
	bumps int
}

func (n *countingNotifier) Bump(context.Context) error {
	n.bumps++
	return nil
}

type fixture struct {
	svc      *folio.Service
	store    *foliotest.Store
	audit    *recordingAudit
	notifier *countingNotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	rates := staticRates{
		rates: map[int64]tax.Rate{
			1: {ID: 1, Name: "VAT", PostingType: tax.PostingFlatPercentage, Percentage: dec("10")},
			2: {ID: 2, Name: "City tax", PostingType: tax.PostingFlatPercentage, Percentage: dec("10"), ApplyAfterDiscount: true},
		},
		room: []int64{1},
	}
	store := foliotest.NewStore()
	audit := &recordingAudit{}
	notifier := &countingNotifier{}
	svc := folio.NewService(store, tax.NewService(rates), audit, nil)
	svc.WithNow(func() time.Time { return testNow })
	svc.WithNotifier(notifier)
	return fixture{svc: svc, store: store, audit: audit, notifier: notifier}
}

func (fx fixture) open(t *testing.T, reservationID, guestID int64, primary bool) folio.Folio {
	t.Helper()
	f, err := fx.svc.OpenFolio(context.Background(), folio.OpenInput{
		HotelID:       1,
		ReservationID: reservationID,
		GuestID:       guestID,
		Type:          folio.TypeMaster,
		IsPrimary:     primary,
		OpenedBy:      7,
	})
	require.NoError(t, err)
	return f
}

func (fx fixture) charge(t *testing.T, folioID int64, amount string) folio.Transaction {
	t.Helper()
	txn, err := fx.svc.PostTransaction(context.Background(), folio.PostInput{
		FolioID:     folioID,
		Type:        folio.TxCharge,
		Category:    folio.CategoryFoodBeverage,
		Description: "Dinner",
		Amount:      dec(amount),
		SkipTaxes:   true,
		PostedBy:    7,
	})
	require.NoError(t, err)
	return txn
}

func (fx fixture) pay(t *testing.T, folioID int64, amount string) folio.Transaction {
	t.Helper()
	txn, err := fx.svc.PostTransaction(context.Background(), folio.PostInput{
		FolioID:         folioID,
		Type:            folio.TxPayment,
		Category:        folio.CategoryPayment,
		Description:     "Card payment",
		Amount:          dec(amount),
		PaymentMethodID: int64Ptr(3),
		PostedBy:        7,
	})
	require.NoError(t, err)
	return txn
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func int64Ptr(v int64) *int64 {
	return &v
}

func requireAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

// requireConsistent checks the stored totals against the folio history.
func requireConsistent(t *testing.T, store *foliotest.Store, folioID int64) {
	t.Helper()
	f := store.Folio(folioID)
	history := store.Transactions(folioID)
	tot := f.Totals
	formula := tot.Charges.Add(tot.Taxes).Add(tot.ServiceCharges).Sub(tot.Payments).Sub(tot.Discounts).Sub(tot.Adjustments)
	require.Truef(t, formula.Equal(tot.Balance), "balance %s does not match breakdown %s", tot.Balance, formula)
	require.Truef(t, folio.SumEffect(history).Equal(tot.Balance), "balance %s does not match history %s", tot.Balance, folio.SumEffect(history))
	recomputed := folio.ComputeTotals(history)
	require.True(t, recomputed.Balance.Equal(tot.Balance))
	require.True(t, recomputed.Payments.Equal(tot.Payments))
	require.True(t, recomputed.Charges.Equal(tot.Charges))
}

func TestPostChargeResolvesTax(t *testing.T) {
	fx := newFixture(t)
	f := fx.open(t, 100, 10, true)

	txn, err := fx.svc.PostTransaction(context.Background(), folio.PostInput{
		FolioID:     f.ID,
		Type:        folio.TxCharge,
		Category:    folio.CategoryRoom,
		Description: "Room 101",
		Amount:      dec("100.00"),
		PostedBy:    7,
	})
	require.NoError(t, err)
	requireAmount(t, "100.00", txn.Amount)
	requireAmount(t, "10.00", txn.TaxAmount)
	requireAmount(t, "110.00", txn.TotalAmount)
	require.Equal(t, testNow.Truncate(24*time.Hour), txn.PostingDate)

	stored := fx.store.Folio(f.ID)
	requireAmount(t, "110.00", stored.Balance())
	requireAmount(t, "100.00", stored.Totals.Charges)
	requireAmount(t, "10.00", stored.Totals.Taxes)
	require.Equal(t, folio.SettlementPending, stored.SettlementStatus)
	requireConsistent(t, fx.store, f.ID)

	require.Equal(t, []string{"folio.open", "folio.transaction.post"}, fx.audit.actions())
	require.Equal(t, 2, fx.notifier.bumps)
}

func TestPostDiscountSplitsTaxPoints(t *testing.T) {
	fx := newFixture(t)
	f := fx.open(t, 100, 10, true)

	txn, err := fx.svc.PostTransaction(context.Background(), folio.PostInput{
		FolioID:    f.ID,
		Type:       folio.TxCharge,
		Category:   folio.CategoryFoodBeverage,
		Amount:     dec("100"),
		Discount:   dec("20"),
		TaxRateIDs: []int64{1, 2},
		PostedBy:   7,
	})
	require.NoError(t, err)
	// 10% on the gross plus 10% on the discounted net.
	requireAmount(t, "18.00", txn.TaxAmount)

	stored := fx.store.Folio(f.ID)
	requireAmount(t, "20.00", stored.Totals.Discounts)
	requireAmount(t, "98.00", stored.Balance())
	requireConsistent(t, fx.store, f.ID)

	// The discount row follows the charge when it is voided.
	res, err := fx.svc.VoidTransaction(context.Background(), folio.VoidInput{TransactionID: txn.ID, VoidedBy: 7, Reason: "wrong table"})
	require.NoError(t, err)
	require.Len(t, res.Voided, 2)
	requireAmount(t, "0", fx.store.Folio(f.ID).Balance())
	requireConsistent(t, fx.store, f.ID)
}

func TestPostRejectsInvalidInput(t *testing.T) {
	fx := newFixture(t)
	f := fx.open(t, 100, 10, true)
	ctx := context.Background()

	_, err := fx.svc.PostTransaction(ctx, folio.PostInput{FolioID: f.ID, Type: folio.TxCharge, Category: folio.CategoryRoom, Amount: dec("-5"), PostedBy: 7})
	require.Error(t, err)

	_, err = fx.svc.PostTransaction(ctx, folio.PostInput{FolioID: f.ID, Type: folio.TxPayment, Category: folio.CategoryPayment, Amount: dec("5"), PostedBy: 7})
	require.Error(t, err)

	_, err = fx.svc.PostTransaction(ctx, folio.PostInput{FolioID: f.ID, Type: folio.TxTransfer, Category: folio.CategoryTransferIn, Amount: dec("5"), PostedBy: 7})
	require.Error(t, err)

	_, err = fx.svc.PostTransaction(ctx, folio.PostInput{FolioID: 999, Type: folio.TxCharge, Category: folio.CategoryRoom, Amount: dec("5"), SkipTaxes: true, PostedBy: 7})
	require.ErrorIs(t, err, folio.ErrFolioNotFound)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPostRespectsClosedBusinessDay(t *testing.T) {
	fx := newFixture(t)
	f := fx.open(t, 100, 10, true)
	fx.store.CloseDay(1, testNow)

	in := folio.PostInput{FolioID: f.ID, Type: folio.TxCharge, Category: folio.CategoryMiscellaneous, Amount: dec("12"), SkipTaxes: true, PostedBy: 7}
	_, err := fx.svc.PostTransaction(context.Background(), in)
	require.ErrorIs(t, err, folio.ErrBusinessDayClosed)

	in.AllowClosedDay = true
	_, err = fx.svc.PostTransaction(context.Background(), in)
	require.NoError(t, err)
}

func TestPostRollsBackOnFailure(t *testing.T) {
	fx := newFixture(t)
	f := fx.open(t, 100, 10, true)
	fx.store.FailInsertAt = 2

	_, err := fx.svc.PostTransaction(context.Background(), folio.PostInput{
		FolioID:   f.ID,
		Type:      folio.TxCharge,
		Category:  folio.CategoryFoodBeverage,
		Amount:    dec("40"),
		Discount:  dec("5"),
		SkipTaxes: true,
		PostedBy:  7,
	})
	require.Error(t, err)
	require.Empty(t, fx.store.Transactions(f.ID))
	requireAmount(t, "0", fx.store.Folio(f.ID).Balance())
}

func TestRoomPostingRejectsDuplicate(t *testing.T) {
	fx := newFixture(t)
	f := fx.open(t, 100, 10, true)
	day := testNow.AddDate(0, 0, -1)
	in := folio.PostInput{
		FolioID:           f.ID,
		Type:              folio.TxRoomPosting,
		Category:          folio.CategoryRoom,
		Amount:            dec("150"),
		ServiceDate:       &day,
		ReservationRoomID: int64Ptr(5),
		PostedBy:          7,
	}
	_, err := fx.svc.PostTransaction(context.Background(), in)
	require.NoError(t, err)
	_, err = fx.svc.PostTransaction(context.Background(), in)
	require.ErrorIs(t, err, folio.ErrDuplicateRoomCharge)
	require.Len(t, fx.store.Transactions(f.ID), 1)
}

func TestVoidPaymentCascadesToTransferPair(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.open(t, 100, 10, true)
	b := fx.open(t, 100, 11, false)
	fx.charge(t, a.ID, "200")

	payment := fx.pay(t, a.ID, "50.00")
	requireAmount(t, "150", fx.store.Folio(a.ID).Balance())

	moved, err := fx.svc.TransferTransaction(ctx, folio.TransferInput{TransactionID: payment.ID, DestinationFolioID: b.ID, PostedBy: 7})
	require.NoError(t, err)
	require.Equal(t, folio.CategoryTransferOut, moved.TransferOut.Category)
	require.Equal(t, folio.CategoryTransferIn, moved.TransferIn.Category)
	require.Equal(t, payment.ID, *moved.TransferOut.OriginalTransactionID)
	require.Equal(t, moved.TransferOut.ID, *moved.TransferIn.OriginalTransactionID)
	require.Equal(t, b.ID, *moved.TransferOut.TransferredToFolioID)
	require.Equal(t, moved.TransferOut.PostingDate, moved.TransferIn.PostingDate)
	requireAmount(t, "200", fx.store.Folio(a.ID).Balance())
	requireAmount(t, "-50", fx.store.Folio(b.ID).Balance())
	requireAmount(t, "50", fx.store.Folio(b.ID).Totals.Payments)

	res, err := fx.svc.VoidTransaction(ctx, folio.VoidInput{TransactionID: payment.ID, VoidedBy: 7, Reason: "card declined"})
	require.NoError(t, err)
	require.Len(t, res.Voided, 3)
	require.Len(t, res.Folios, 2)

	for _, id := range []int64{payment.ID, moved.TransferOut.ID, moved.TransferIn.ID} {
		require.True(t, fx.store.Transaction(id).IsVoided, "transaction %d", id)
	}
	require.Contains(t, fx.store.Transaction(moved.TransferIn.ID).VoidReason, "linked to void of "+payment.TransactionNumber)

	requireAmount(t, "200", fx.store.Folio(a.ID).Balance())
	requireAmount(t, "0", fx.store.Folio(a.ID).Totals.Payments)
	requireAmount(t, "0", fx.store.Folio(b.ID).Balance())
	requireConsistent(t, fx.store, a.ID)
	requireConsistent(t, fx.store, b.ID)
}

func TestVoidTransferInVoidsItsPair(t *testing.T) {
	fx := newFixture(t)
	a := fx.open(t, 100, 10, true)
	b := fx.open(t, 100, 11, false)
	payment := fx.pay(t, a.ID, "80")
	moved, err := fx.svc.TransferTransaction(context.Background(), folio.TransferInput{TransactionID: payment.ID, DestinationFolioID: b.ID, PostedBy: 7})
	require.NoError(t, err)

	_, err = fx.svc.VoidTransaction(context.Background(), folio.VoidInput{TransactionID: moved.TransferIn.ID, VoidedBy: 7, Reason: "wrong folio"})
	require.NoError(t, err)
	require.True(t, fx.store.Transaction(moved.TransferOut.ID).IsVoided)
	require.False(t, fx.store.Transaction(payment.ID).IsVoided)
	requireAmount(t, "-80", fx.store.Folio(a.ID).Balance())
	requireAmount(t, "0", fx.store.Folio(b.ID).Balance())
}

func TestVoidRejectsRepeatAndUnknown(t *testing.T) {
	fx := newFixture(t)
	f := fx.open(t, 100, 10, true)
	txn := fx.charge(t, f.ID, "10")
	ctx := context.Background()

	_, err := fx.svc.VoidTransaction(ctx, folio.VoidInput{TransactionID: txn.ID, VoidedBy: 7, Reason: "dup"})
	require.NoError(t, err)
	_, err = fx.svc.VoidTransaction(ctx, folio.VoidInput{TransactionID: txn.ID, VoidedBy: 7, Reason: "dup"})
	require.ErrorIs(t, err, folio.ErrAlreadyVoided)
	require.ErrorIs(t, err, shared.ErrAlreadyVoided)

	_, err = fx.svc.VoidTransaction(ctx, folio.VoidInput{TransactionID: 404, VoidedBy: 7, Reason: "dup"})
	require.ErrorIs(t, err, folio.ErrTransactionNotFound)

	_, err = fx.svc.VoidTransaction(ctx, folio.VoidInput{TransactionID: txn.ID, VoidedBy: 7})
	require.Error(t, err)
}

func TestPartialTransferProratesTax(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.open(t, 100, 10, true)
	b := fx.open(t, 100, 11, false)
	room, err := fx.svc.PostTransaction(ctx, folio.PostInput{FolioID: a.ID, Type: folio.TxCharge, Category: folio.CategoryRoom, Amount: dec("100"), PostedBy: 7})
	require.NoError(t, err)

	half, err := fx.svc.TransferTransaction(ctx, folio.TransferInput{TransactionID: room.ID, DestinationFolioID: b.ID, Amount: dec("55"), PostedBy: 7})
	require.NoError(t, err)
	requireAmount(t, "-55", half.TransferOut.TotalAmount)
	requireAmount(t, "-5", half.TransferOut.TaxAmount)
	requireAmount(t, "55", half.TransferIn.TotalAmount)

	sa, sb := fx.store.Folio(a.ID), fx.store.Folio(b.ID)
	requireAmount(t, "50", sa.Totals.Charges)
	requireAmount(t, "5", sa.Totals.Taxes)
	requireAmount(t, "55", sa.Balance())
	requireAmount(t, "50", sb.Totals.Charges)
	requireAmount(t, "55", sb.Balance())

	_, err = fx.svc.TransferTransaction(ctx, folio.TransferInput{TransactionID: room.ID, DestinationFolioID: b.ID, Amount: dec("60"), PostedBy: 7})
	require.ErrorIs(t, err, folio.ErrInvalidTransfer)

	rest, err := fx.svc.TransferTransaction(ctx, folio.TransferInput{TransactionID: room.ID, DestinationFolioID: b.ID, PostedBy: 7})
	require.NoError(t, err)
	requireAmount(t, "55", rest.TransferIn.TotalAmount)
	requireAmount(t, "0", fx.store.Folio(a.ID).Balance())
	requireAmount(t, "110", fx.store.Folio(b.ID).Balance())
	requireConsistent(t, fx.store, a.ID)
	requireConsistent(t, fx.store, b.ID)
}

func TestTransferRejections(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.open(t, 100, 10, true)
	b := fx.open(t, 100, 11, false)
	txn := fx.charge(t, a.ID, "30")

	_, err := fx.svc.TransferTransaction(ctx, folio.TransferInput{TransactionID: txn.ID, DestinationFolioID: a.ID, PostedBy: 7})
	require.ErrorIs(t, err, folio.ErrInvalidTransfer)

	moved, err := fx.svc.TransferTransaction(ctx, folio.TransferInput{TransactionID: txn.ID, DestinationFolioID: b.ID, PostedBy: 7})
	require.NoError(t, err)
	_, err = fx.svc.TransferTransaction(ctx, folio.TransferInput{TransactionID: moved.TransferIn.ID, DestinationFolioID: a.ID, PostedBy: 7})
	require.ErrorIs(t, err, folio.ErrInvalidTransfer)

	voided := fx.charge(t, a.ID, "5")
	_, err = fx.svc.VoidTransaction(ctx, folio.VoidInput{TransactionID: voided.ID, VoidedBy: 7, Reason: "x"})
	require.NoError(t, err)
	_, err = fx.svc.TransferTransaction(ctx, folio.TransferInput{TransactionID: voided.ID, DestinationFolioID: b.ID, PostedBy: 7})
	require.ErrorIs(t, err, folio.ErrInvalidTransfer)
}

func TestCorrectionPostsDifference(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.open(t, 100, 10, true)
	orig := fx.charge(t, f.ID, "100")

	corr, err := fx.svc.CorrectTransaction(ctx, folio.CorrectInput{TransactionID: orig.ID, NewAmount: dec("80"), Reason: "rate fix", PostedBy: 7})
	require.NoError(t, err)
	require.Equal(t, folio.TxCorrection, corr.Type)
	requireAmount(t, "-20", corr.TotalAmount)
	require.Equal(t, orig.ID, *corr.OriginalTransactionID)
	require.Equal(t, corr.ID, *fx.store.Transaction(orig.ID).CorrectedTransactionID)
	requireAmount(t, "80", fx.store.Folio(f.ID).Totals.Charges)
	requireAmount(t, "80", fx.store.Folio(f.ID).Balance())

	_, err = fx.svc.CorrectTransaction(ctx, folio.CorrectInput{TransactionID: orig.ID, NewAmount: dec("70"), Reason: "again", PostedBy: 7})
	require.ErrorIs(t, err, folio.ErrAlreadyCorrected)

	_, err = fx.svc.VoidTransaction(ctx, folio.VoidInput{TransactionID: orig.ID, VoidedBy: 7, Reason: "guest moved"})
	require.NoError(t, err)
	require.True(t, fx.store.Transaction(corr.ID).IsVoided)
	requireAmount(t, "0", fx.store.Folio(f.ID).Balance())

	_, err = fx.svc.CorrectTransaction(ctx, folio.CorrectInput{TransactionID: orig.ID, NewAmount: dec("70"), Reason: "late", PostedBy: 7})
	require.ErrorIs(t, err, folio.ErrAlreadyVoided)
}

func TestVoidingCorrectionReopensOriginal(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.open(t, 100, 10, true)
	payment := fx.pay(t, f.ID, "50")

	corr, err := fx.svc.CorrectTransaction(ctx, folio.CorrectInput{TransactionID: payment.ID, NewAmount: dec("40"), Reason: "partial capture", PostedBy: 7})
	require.NoError(t, err)
	requireAmount(t, "10", corr.TotalAmount)
	requireAmount(t, "40", fx.store.Folio(f.ID).Totals.Payments)

	_, err = fx.svc.VoidTransaction(ctx, folio.VoidInput{TransactionID: corr.ID, VoidedBy: 7, Reason: "captured in full"})
	require.NoError(t, err)
	require.Nil(t, fx.store.Transaction(payment.ID).CorrectedTransactionID)
	requireAmount(t, "50", fx.store.Folio(f.ID).Totals.Payments)
	requireConsistent(t, fx.store, f.ID)
}

func TestBalanceInvariantHoldsAcrossHistory(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.open(t, 100, 10, true)
	b := fx.open(t, 100, 11, false)

	var ops []func() error
	ops = append(ops,
		func() error { fx.charge(t, a.ID, "120.40"); return nil },
		func() error { fx.pay(t, a.ID, "20.15"); return nil },
		func() error {
			_, err := fx.svc.PostTransaction(ctx, folio.PostInput{FolioID: a.ID, Type: folio.TxAdjustment, Category: folio.CategoryMiscellaneous, Amount: dec("3.33"), PostedBy: 7})
			return err
		},
		func() error {
			_, err := fx.svc.PostTransaction(ctx, folio.PostInput{FolioID: a.ID, Type: folio.TxCharge, Category: folio.CategoryRoom, Amount: dec("89.99"), ServiceChargeAmount: dec("9"), PostedBy: 7})
			return err
		},
		func() error {
			txns := fx.store.Transactions(a.ID)
			_, err := fx.svc.TransferTransaction(ctx, folio.TransferInput{TransactionID: txns[len(txns)-1].ID, DestinationFolioID: b.ID, Amount: dec("33.17"), PostedBy: 7})
			return err
		},
		func() error {
			txns := fx.store.Transactions(a.ID)
			_, err := fx.svc.CorrectTransaction(ctx, folio.CorrectInput{TransactionID: txns[0].ID, NewAmount: dec("100"), Reason: "typo", PostedBy: 7})
			return err
		},
		func() error {
			txns := fx.store.Transactions(a.ID)
			_, err := fx.svc.VoidTransaction(ctx, folio.VoidInput{TransactionID: txns[1].ID, VoidedBy: 7, Reason: "refunded"})
			return err
		},
	)
	for i, op := range ops {
		require.NoError(t, op(), "op %d", i)
		requireConsistent(t, fx.store, a.ID)
		requireConsistent(t, fx.store, b.ID)
	}

	// Recompute is a no-op once stored totals match history.
	before := fx.store.Folio(a.ID)
	after, err := fx.svc.RecomputeFolio(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, before.Balance().Equal(after.Balance()))
}

func TestVoidSymmetryOverTransferPairs(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.open(t, 100, 10, true)
	b := fx.open(t, 100, 11, false)
	c := fx.open(t, 100, 12, false)

	p := fx.pay(t, a.ID, "90")
	_, err := fx.svc.TransferTransaction(ctx, folio.TransferInput{TransactionID: p.ID, DestinationFolioID: b.ID, Amount: dec("30"), PostedBy: 7})
	require.NoError(t, err)
	_, err = fx.svc.TransferTransaction(ctx, folio.TransferInput{TransactionID: p.ID, DestinationFolioID: c.ID, Amount: dec("30"), PostedBy: 7})
	require.NoError(t, err)
	_, err = fx.svc.VoidTransaction(ctx, folio.VoidInput{TransactionID: p.ID, VoidedBy: 7, Reason: "chargeback"})
	require.NoError(t, err)

	all := fx.store.AllTransactions()
	byID := make(map[int64]folio.Transaction, len(all))
	for _, txn := range all {
		byID[txn.ID] = txn
	}
	var legs []int64
	for _, txn := range all {
		if txn.Category != folio.CategoryTransferIn {
			continue
		}
		out := byID[*txn.OriginalTransactionID]
		require.Equal(t, out.IsVoided, txn.IsVoided)
		legs = append(legs, txn.ID)
	}
	sort.Slice(legs, func(i, j int) bool { return legs[i] < legs[j] })
	require.Len(t, legs, 2)
	for _, f := range []folio.Folio{a, b, c} {
		requireAmount(t, "0", fx.store.Folio(f.ID).Balance())
	}
}

func TestVoidOrphanedTransfers(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	a := fx.open(t, 100, 10, true)
	b := fx.open(t, 100, 11, false)

	voidedAt := testNow.Add(-time.Hour)
	payment := fx.store.SeedTransaction(folio.Transaction{
		FolioID: a.ID, HotelID: 1, ReservationID: 100, Type: folio.TxPayment, Category: folio.CategoryPayment,
		Amount: dec("-50"), TotalAmount: dec("-50"), IsPosted: true, IsVoided: true, VoidedAt: &voidedAt, VoidReason: "declined",
	})
	out := fx.store.SeedTransaction(folio.Transaction{
		FolioID: a.ID, HotelID: 1, ReservationID: 100, Type: folio.TxTransfer, Category: folio.CategoryTransferOut, AppliesTo: folio.TxPayment,
		Amount: dec("50"), TotalAmount: dec("50"), IsPosted: true, OriginalTransactionID: &payment.ID, TransferredToFolioID: &b.ID,
	})
	fx.store.SeedTransaction(folio.Transaction{
		FolioID: b.ID, HotelID: 1, ReservationID: 100, Type: folio.TxTransfer, Category: folio.CategoryTransferIn, AppliesTo: folio.TxPayment,
		Amount: dec("-50"), TotalAmount: dec("-50"), IsPosted: true, OriginalTransactionID: &out.ID,
	})

	res, err := fx.svc.VoidOrphanedTransfers(ctx, folio.RepairInput{TransactionID: payment.ID, Actor: 1})
	require.NoError(t, err)
	require.Len(t, res.Voided, 2)
	require.Contains(t, res.Voided[0].VoidReason, "id 1")
	requireAmount(t, "0", fx.store.Folio(a.ID).Balance())
	requireAmount(t, "0", fx.store.Folio(b.ID).Balance())

	again, err := fx.svc.VoidOrphanedTransfers(ctx, folio.RepairInput{TransactionID: payment.ID, Actor: 1})
	require.NoError(t, err)
	require.Empty(t, again.Voided)

	live := fx.charge(t, a.ID, "5")
	_, err = fx.svc.VoidOrphanedTransfers(ctx, folio.RepairInput{TransactionID: live.ID, Actor: 1})
	require.True(t, errors.Is(err, folio.ErrNotVoided))
}
