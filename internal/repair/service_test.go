package repair

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-folio/internal/folio"
	"github.com/odyssey-erp/odyssey-folio/internal/folio/foliotest"
	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

var repairNow = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

// storeFinder evaluates the detection rules over the in-memory store.
type storeFinder struct {
	store *foliotest.Store
	extra []Candidate
}

func (f storeFinder) FindVoidedPaymentOrphans(_ context.Context, hotelID *int64, limit int) ([]Candidate, error) {
	rows := f.byID()
	var out []Candidate
	for _, child := range f.store.AllTransactions() {
		if child.Type != folio.TxTransfer || child.IsVoided || child.OriginalTransactionID == nil {
			continue
		}
		parent, ok := rows[*child.OriginalTransactionID]
		if !ok || parent.Type != folio.TxPayment || !parent.IsVoided {
			continue
		}
		if hotelID != nil && parent.HotelID != *hotelID {
			continue
		}
		out = append(out, Candidate{Kind: KindVoidedPaymentOrphan, HotelID: parent.HotelID, SourceID: parent.ID, LinkedID: child.ID})
	}
	out = append(out, f.extra...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f storeFinder) FindTransferPairMismatches(_ context.Context, hotelID *int64, limit int) ([]Candidate, error) {
	rows := f.byID()
	var out []Candidate
	for _, in := range f.store.AllTransactions() {
		if in.Category != folio.CategoryTransferIn || in.OriginalTransactionID == nil {
			continue
		}
		out2, ok := rows[*in.OriginalTransactionID]
		if !ok || out2.Category != folio.CategoryTransferOut || out2.IsVoided == in.IsVoided {
			continue
		}
		if hotelID != nil && out2.HotelID != *hotelID {
			continue
		}
		c := Candidate{Kind: KindTransferPairMismatch, HotelID: out2.HotelID, SourceID: in.ID, LinkedID: out2.ID}
		if out2.IsVoided {
			c.SourceID, c.LinkedID = out2.ID, in.ID
		}
		out = append(out, c)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f storeFinder) byID() map[int64]folio.Transaction {
	out := map[int64]folio.Transaction{}
	for _, txn := range f.store.AllTransactions() {
		out[txn.ID] = txn
	}
	return out
}

type repairFixture struct {
	store  *foliotest.Store
	ledger *folio.Service
	a, b   folio.Folio
}

func newRepairFixture(t *testing.T) repairFixture {
	t.Helper()
	store := foliotest.NewStore()
	ledger := folio.NewService(store, nil, nil, nil)
	ledger.WithNow(func() time.Time { return repairNow })
	open := func(guest int64, primary bool) folio.Folio {
		f, err := ledger.OpenFolio(context.Background(), folio.OpenInput{
			HotelID: 1, ReservationID: 500, GuestID: guest, Type: folio.TypeMaster, IsPrimary: primary, OpenedBy: 3,
		})
		require.NoError(t, err)
		return f
	}
	return repairFixture{store: store, ledger: ledger, a: open(1, true), b: open(2, false)}
}

// brokenPair reproduces a voided payment whose transfer pair stayed live.
func (fx repairFixture) brokenPair(t *testing.T) (payment, out, in folio.Transaction) {
	t.Helper()
	voidedAt := repairNow.Add(-24 * time.Hour)
	payment = fx.store.SeedTransaction(folio.Transaction{
		FolioID: fx.a.ID, HotelID: 1, ReservationID: 500, Type: folio.TxPayment, Category: folio.CategoryPayment,
		AppliesTo: folio.TxPayment, Amount: decimal.NewFromInt(-50), TotalAmount: decimal.NewFromInt(-50),
		IsPosted: true, IsVoided: true, VoidedAt: &voidedAt, VoidReason: "card declined",
	})
	out = fx.store.SeedTransaction(folio.Transaction{
		FolioID: fx.a.ID, HotelID: 1, ReservationID: 500, Type: folio.TxTransfer, Category: folio.CategoryTransferOut,
		AppliesTo: folio.TxPayment, Amount: decimal.NewFromInt(50), TotalAmount: decimal.NewFromInt(50),
		IsPosted: true, OriginalTransactionID: &payment.ID, TransferredToFolioID: &fx.b.ID,
	})
	in = fx.store.SeedTransaction(folio.Transaction{
		FolioID: fx.b.ID, HotelID: 1, ReservationID: 500, Type: folio.TxTransfer, Category: folio.CategoryTransferIn,
		AppliesTo: folio.TxPayment, Amount: decimal.NewFromInt(-50), TotalAmount: decimal.NewFromInt(-50),
		IsPosted: true, OriginalTransactionID: &out.ID,
	})
	return payment, out, in
}

func TestRunRepairsVoidedPaymentOrphans(t *testing.T) {
	fx := newRepairFixture(t)
	payment, out, in := fx.brokenPair(t)
	svc := NewService(storeFinder{store: fx.store}, fx.ledger, nil)

	report, err := svc.Run(context.Background(), Options{Actor: 9})
	require.NoError(t, err)
	require.Equal(t, 1, report.Found)
	require.Equal(t, 1, report.Fixed)
	require.Len(t, report.Outcomes[0].After, 2)

	for _, id := range []int64{out.ID, in.ID} {
		txn := fx.store.Transaction(id)
		require.True(t, txn.IsVoided)
		require.Contains(t, txn.VoidReason, fmt.Sprintf("(id %d)", payment.ID))
	}
	require.True(t, fx.store.Folio(fx.a.ID).Balance().IsZero())
	require.True(t, fx.store.Folio(fx.b.ID).Balance().IsZero())
	voidedAt := fx.store.Transaction(out.ID).VoidedAt
	require.NotNil(t, voidedAt)

	again, err := svc.Run(context.Background(), Options{Actor: 9})
	require.NoError(t, err)
	require.Zero(t, again.Found)
	require.Empty(t, again.Outcomes)
	require.Equal(t, voidedAt, fx.store.Transaction(out.ID).VoidedAt)
}

func TestRunDryRunChangesNothing(t *testing.T) {
	fx := newRepairFixture(t)
	_, out, in := fx.brokenPair(t)
	svc := NewService(storeFinder{store: fx.store}, fx.ledger, nil)

	report, err := svc.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	require.True(t, report.DryRun)
	require.Equal(t, 1, report.Found)
	require.Zero(t, report.Fixed)
	require.Equal(t, OutcomeWouldFix, report.Outcomes[0].Status)
	require.False(t, fx.store.Transaction(out.ID).IsVoided)
	require.False(t, fx.store.Transaction(in.ID).IsVoided)
}

func TestRunRepairsTransferPairMismatch(t *testing.T) {
	fx := newRepairFixture(t)
	payment, err := fx.ledger.PostTransaction(context.Background(), folio.PostInput{
		FolioID: fx.a.ID, Type: folio.TxPayment, Category: folio.CategoryPayment, Amount: decimal.NewFromInt(80),
		PaymentMethodID: int64Ref(2), PostedBy: 3,
	})
	require.NoError(t, err)
	moved, err := fx.ledger.TransferTransaction(context.Background(), folio.TransferInput{
		TransactionID: payment.ID, DestinationFolioID: fx.b.ID, PostedBy: 3,
	})
	require.NoError(t, err)
	require.NoError(t, fx.store.Atomic(func(tx folio.TxRepository) error {
		return tx.MarkVoided(context.Background(), moved.TransferIn.ID, 3, repairNow, "manual")
	}))

	svc := NewService(storeFinder{store: fx.store}, fx.ledger, nil)
	report, err := svc.Run(context.Background(), Options{Actor: 9})
	require.NoError(t, err)
	require.Equal(t, 1, report.Fixed)
	require.Equal(t, KindTransferPairMismatch, report.Outcomes[0].Kind)
	require.True(t, fx.store.Transaction(moved.TransferOut.ID).IsVoided)
	require.False(t, fx.store.Transaction(payment.ID).IsVoided)
	require.Equal(t, "-80.00", fx.store.Folio(fx.a.ID).Balance().StringFixed(2))
	require.True(t, fx.store.Folio(fx.b.ID).Balance().IsZero())
}

func TestRunFailureHandling(t *testing.T) {
	bogus := Candidate{Kind: KindVoidedPaymentOrphan, HotelID: 1, SourceID: 9999, LinkedID: 9998}

	t.Run("abort", func(t *testing.T) {
		fx := newRepairFixture(t)
		fx.brokenPair(t)
		svc := NewService(storeFinder{store: fx.store, extra: []Candidate{bogus}}, fx.ledger, nil)
		report, err := svc.Run(context.Background(), Options{Actor: 9})
		require.ErrorIs(t, err, ErrAborted)
		require.Equal(t, 1, report.Failed)
	})
	t.Run("continue on error", func(t *testing.T) {
		fx := newRepairFixture(t)
		_, out, _ := fx.brokenPair(t)
		svc := NewService(storeFinder{store: fx.store, extra: []Candidate{bogus}}, fx.ledger, nil)
		report, err := svc.Run(context.Background(), Options{Actor: 9, ContinueOnError: true})
		require.NoError(t, err)
		require.Equal(t, 1, report.Failed)
		require.Equal(t, 1, report.Fixed)
		require.True(t, fx.store.Transaction(out.ID).IsVoided)
	})
}

func TestRunRequiresActor(t *testing.T) {
	fx := newRepairFixture(t)
	svc := NewService(storeFinder{store: fx.store}, fx.ledger, nil)
	_, err := svc.Run(context.Background(), Options{})
	require.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestDetectHonoursScopeAndLimit(t *testing.T) {
	fx := newRepairFixture(t)
	fx.brokenPair(t)
	fx.brokenPair(t)
	svc := NewService(storeFinder{store: fx.store}, fx.ledger, nil)

	all, err := svc.Detect(context.Background(), nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	limited, err := svc.Detect(context.Background(), nil, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	other := int64(2)
	none, err := svc.Detect(context.Background(), &other, 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func int64Ref(v int64) *int64 {
	return &v
}
