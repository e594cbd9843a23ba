// Package foliotest provides an in-memory folio store for service tests.
package foliotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-folio/internal/folio"
)

type dayKey struct {
	hotelID int64
	date    string
}

// Store keeps folios and transactions in memory. Each unit of work runs under
// a single mutex and is rolled back from a snapshot when the callback fails.
type Store struct {
	mu         sync.Mutex
	folios     map[int64]folio.Folio
	txns       map[int64]folio.Transaction
	closedDays map[dayKey]bool
	calendar   func(hotelID int64, date time.Time) bool
	nextFolio  int64
	nextTxn    int64

	// FailInsertAt makes the n-th InsertTransaction call (1-based) fail.
	FailInsertAt int
	inserts      int
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		folios:     map[int64]folio.Folio{},
		txns:       map[int64]folio.Transaction{},
		closedDays: map[dayKey]bool{},
	}
}

// WithTx implements folio.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, folio.TxRepository) error) error {
	return s.Atomic(func(tx folio.TxRepository) error {
		return fn(ctx, tx)
	})
}

// Atomic runs fn with snapshot rollback. Callers composing their own state
// can nest their snapshot inside fn.
func (s *Store) Atomic(fn func(folio.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	folios := cloneMap(s.folios)
	txns := cloneMap(s.txns)
	days := cloneMap(s.closedDays)
	nextFolio, nextTxn := s.nextFolio, s.nextTxn
	if err := fn(&tx{s: s}); err != nil {
		s.folios, s.txns, s.closedDays = folios, txns, days
		s.nextFolio, s.nextTxn = nextFolio, nextTxn
		return err
	}
	return nil
}

// SeedFolio stores a folio as-is and returns it with an id.
func (s *Store) SeedFolio(f folio.Folio) folio.Folio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{s: s}).insertFolio(f)
}

// SeedTransaction stores a transaction as-is, bypassing ledger rules. Used to
// reproduce inconsistent history.
func (s *Store) SeedTransaction(t folio.Transaction) folio.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{s: s}).insertTxn(t)
}

// CloseDay marks the business day as closed by night audit.
func (s *Store) CloseDay(hotelID int64, date time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closedDays[dayKey{hotelID: hotelID, date: date.Format("2006-01-02")}] = true
}

// UseCalendar makes fn the authority on closed days, alongside CloseDay. fn
// runs with the store locked.
func (s *Store) UseCalendar(fn func(hotelID int64, date time.Time) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendar = fn
}

// Inserts reports how many InsertTransaction calls were made, rolled back or not.
func (s *Store) Inserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

// Folio returns a stored folio.
func (s *Store) Folio(id int64) folio.Folio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folios[id]
}

// Transaction returns a stored transaction.
func (s *Store) Transaction(id int64) folio.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns[id]
}

// Transactions lists a folio's rows in id order.
func (s *Store) Transactions(folioID int64) []folio.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&tx{s: s}).byFolio(folioID)
}

// AllTransactions lists every row in id order.
func (s *Store) AllTransactions() []folio.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]folio.Transaction, 0, len(s.txns))
	for _, t := range s.txns {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Folios lists every folio in id order.
func (s *Store) Folios() []folio.Folio {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]folio.Folio, 0, len(s.folios))
	for _, f := range s.folios {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type tx struct {
	s *Store
}

func (t *tx) LockFolios(_ context.Context, ids []int64) (map[int64]folio.Folio, error) {
	out := make(map[int64]folio.Folio, len(ids))
	for _, id := range ids {
		if f, ok := t.s.folios[id]; ok {
			out[id] = f
		}
	}
	return out, nil
}

func (t *tx) GetFolio(_ context.Context, id int64) (folio.Folio, error) {
	f, ok := t.s.folios[id]
	if !ok {
		return folio.Folio{}, folio.ErrFolioNotFound
	}
	return f, nil
}

func (t *tx) InsertFolio(_ context.Context, f folio.Folio) (folio.Folio, error) {
	for _, existing := range t.s.folios {
		if existing.ReservationID != f.ReservationID || existing.GuestID != f.GuestID {
			continue
		}
		if f.IsPrimary && existing.IsPrimary {
			return folio.Folio{}, folio.ErrPrimaryFolioExists
		}
	}
	return t.insertFolio(f), nil
}

func (t *tx) FindPrimaryFolio(_ context.Context, reservationID int64) (folio.Folio, error) {
	for _, f := range t.sortedFolios() {
		if f.ReservationID == reservationID && f.IsPrimary && f.Status != folio.StatusTransferred {
			return f, nil
		}
	}
	return folio.Folio{}, folio.ErrFolioNotFound
}

func (t *tx) FindGuestFolio(_ context.Context, reservationID, guestID int64) (folio.Folio, error) {
	for _, f := range t.sortedFolios() {
		if f.ReservationID == reservationID && f.GuestID == guestID {
			return f, nil
		}
	}
	return folio.Folio{}, folio.ErrFolioNotFound
}

func (t *tx) UpdateFolioTotals(_ context.Context, id int64, totals folio.Totals, settlement folio.SettlementStatus) error {
	f, ok := t.s.folios[id]
	if !ok {
		return folio.ErrFolioNotFound
	}
	f.Totals = totals
	f.SettlementStatus = settlement
	t.s.folios[id] = f
	return nil
}

func (t *tx) UpdateCreditFlag(_ context.Context, id int64, exceeded bool) error {
	f, ok := t.s.folios[id]
	if !ok {
		return folio.ErrFolioNotFound
	}
	f.CreditLimitExceeded = exceeded
	t.s.folios[id] = f
	return nil
}

func (t *tx) MarkFolioClosed(_ context.Context, id, closedBy int64, closedAt time.Time, final decimal.Decimal) error {
	f, ok := t.s.folios[id]
	if !ok {
		return folio.ErrFolioNotFound
	}
	f.Status = folio.StatusClosed
	f.ClosedBy = &closedBy
	f.ClosedDate = &closedAt
	f.FinalBalance = &final
	t.s.folios[id] = f
	return nil
}

func (t *tx) GetTransaction(_ context.Context, id int64) (folio.Transaction, error) {
	txn, ok := t.s.txns[id]
	if !ok {
		return folio.Transaction{}, folio.ErrTransactionNotFound
	}
	return txn, nil
}

func (t *tx) ListFolioTransactions(_ context.Context, folioID int64) ([]folio.Transaction, error) {
	return t.byFolio(folioID), nil
}

func (t *tx) ListLinkedTransactions(_ context.Context, originalID int64) ([]folio.Transaction, error) {
	var out []folio.Transaction
	for _, txn := range t.sortedTxns() {
		if txn.OriginalTransactionID != nil && *txn.OriginalTransactionID == originalID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (t *tx) InsertTransaction(_ context.Context, txn folio.Transaction) (folio.Transaction, error) {
	t.s.inserts++
	if t.s.FailInsertAt > 0 && t.s.inserts == t.s.FailInsertAt {
		return folio.Transaction{}, fmt.Errorf("foliotest: injected insert failure #%d", t.s.inserts)
	}
	if _, ok := t.s.folios[txn.FolioID]; !ok {
		return folio.Transaction{}, folio.ErrFolioNotFound
	}
	if txn.Type == folio.TxRoomPosting && txn.OriginalTransactionID == nil && txn.ReservationRoomID != nil && txn.ServiceDate != nil {
		if t.roomCharged(*txn.ReservationRoomID, *txn.ServiceDate) {
			return folio.Transaction{}, folio.ErrDuplicateRoomCharge
		}
	}
	txn.IsVoided = false
	return t.insertTxn(txn), nil
}

func (t *tx) MarkVoided(_ context.Context, id, voidedBy int64, at time.Time, reason string) error {
	txn, ok := t.s.txns[id]
	if !ok {
		return folio.ErrTransactionNotFound
	}
	if txn.IsVoided {
		return folio.ErrAlreadyVoided
	}
	txn.IsVoided = true
	txn.VoidedAt = &at
	txn.VoidedBy = &voidedBy
	txn.VoidReason = reason
	t.s.txns[id] = txn
	return nil
}

func (t *tx) SetCorrectedBy(_ context.Context, id int64, correctionID *int64) error {
	txn, ok := t.s.txns[id]
	if !ok {
		return folio.ErrTransactionNotFound
	}
	txn.CorrectedTransactionID = correctionID
	t.s.txns[id] = txn
	return nil
}

func (t *tx) RoomChargeExists(_ context.Context, reservationRoomID int64, serviceDate time.Time) (bool, error) {
	return t.roomCharged(reservationRoomID, serviceDate), nil
}

func (t *tx) IsBusinessDayClosed(_ context.Context, hotelID int64, date time.Time) (bool, error) {
	if t.s.calendar != nil && t.s.calendar(hotelID, date) {
		return true, nil
	}
	return t.s.closedDays[dayKey{hotelID: hotelID, date: date.Format("2006-01-02")}], nil
}

func (t *tx) ListPostedOn(_ context.Context, hotelID int64, date time.Time) ([]folio.Transaction, error) {
	day := date.Format("2006-01-02")
	var out []folio.Transaction
	for _, txn := range t.sortedTxns() {
		if txn.HotelID == hotelID && !txn.IsVoided && txn.PostingDate.Format("2006-01-02") == day {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (t *tx) SumOpenBalances(_ context.Context, hotelID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, f := range t.s.folios {
		if f.HotelID == hotelID && f.Status == folio.StatusOpen {
			total = total.Add(f.Totals.Balance)
		}
	}
	return total, nil
}

func (t *tx) roomCharged(reservationRoomID int64, serviceDate time.Time) bool {
	day := serviceDate.Format("2006-01-02")
	for _, txn := range t.s.txns {
		if txn.Type != folio.TxRoomPosting || txn.IsVoided || txn.IsCopy() {
			continue
		}
		if txn.ReservationRoomID != nil && *txn.ReservationRoomID == reservationRoomID &&
			txn.ServiceDate != nil && txn.ServiceDate.Format("2006-01-02") == day {
			return true
		}
	}
	return false
}

func (t *tx) insertFolio(f folio.Folio) folio.Folio {
	t.s.nextFolio++
	if f.ID == 0 {
		f.ID = t.s.nextFolio
	} else if f.ID > t.s.nextFolio {
		t.s.nextFolio = f.ID
	}
	if f.FolioNumber == "" {
		f.FolioNumber = fmt.Sprintf("F%08d", f.ID)
	}
	if f.Status == "" {
		f.Status = folio.StatusOpen
	}
	if f.CurrencyCode == "" {
		f.CurrencyCode = "USD"
	}
	t.s.folios[f.ID] = f
	return f
}

func (t *tx) insertTxn(txn folio.Transaction) folio.Transaction {
	t.s.nextTxn++
	if txn.ID == 0 {
		txn.ID = t.s.nextTxn
	} else if txn.ID > t.s.nextTxn {
		t.s.nextTxn = txn.ID
	}
	if txn.TransactionNumber == "" {
		txn.TransactionNumber = fmt.Sprintf("T%010d", txn.ID)
	}
	if txn.AppliesTo == "" {
		txn.AppliesTo = txn.Type
	}
	txn.Amount = txn.Amount.Round(2)
	txn.TaxAmount = txn.TaxAmount.Round(2)
	txn.ServiceChargeAmount = txn.ServiceChargeAmount.Round(2)
	txn.TotalAmount = txn.TotalAmount.Round(2)
	t.s.txns[txn.ID] = txn
	return txn
}

func (t *tx) byFolio(folioID int64) []folio.Transaction {
	var out []folio.Transaction
	for _, txn := range t.sortedTxns() {
		if txn.FolioID == folioID {
			out = append(out, txn)
		}
	}
	return out
}

func (t *tx) sortedTxns() []folio.Transaction {
	out := make([]folio.Transaction, 0, len(t.s.txns))
	for _, txn := range t.s.txns {
		out = append(out, txn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *tx) sortedFolios() []folio.Folio {
	out := make([]folio.Folio, 0, len(t.s.folios))
	for _, f := range t.s.folios {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
