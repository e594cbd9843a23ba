package folio

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-folio/internal/shared"
	"github.com/odyssey-erp/odyssey-folio/internal/tax"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the folio operations available inside one unit of work.
type TxRepository interface {
	// LockFolios loads and row-locks folios in ascending id order.
	LockFolios(ctx context.Context, ids []int64) (map[int64]Folio, error)
	GetFolio(ctx context.Context, id int64) (Folio, error)
	InsertFolio(ctx context.Context, f Folio) (Folio, error)
	FindPrimaryFolio(ctx context.Context, reservationID int64) (Folio, error)
	FindGuestFolio(ctx context.Context, reservationID, guestID int64) (Folio, error)
	UpdateFolioTotals(ctx context.Context, id int64, totals Totals, settlement SettlementStatus) error
	UpdateCreditFlag(ctx context.Context, id int64, exceeded bool) error
	MarkFolioClosed(ctx context.Context, id, closedBy int64, closedAt time.Time, finalBalance decimal.Decimal) error

	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListFolioTransactions(ctx context.Context, folioID int64) ([]Transaction, error)
	// ListLinkedTransactions returns rows whose original_transaction_id is originalID.
	ListLinkedTransactions(ctx context.Context, originalID int64) ([]Transaction, error)
	InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	MarkVoided(ctx context.Context, id, voidedBy int64, at time.Time, reason string) error
	SetCorrectedBy(ctx context.Context, id int64, correctionID *int64) error
	RoomChargeExists(ctx context.Context, reservationRoomID int64, serviceDate time.Time) (bool, error)
	IsBusinessDayClosed(ctx context.Context, hotelID int64, date time.Time) (bool, error)
	// ListPostedOn returns the non-voided rows of a hotel posted on date.
	ListPostedOn(ctx context.Context, hotelID int64, date time.Time) ([]Transaction, error)
	// SumOpenBalances totals the balance of every open folio of a hotel.
	SumOpenBalances(ctx context.Context, hotelID int64) (decimal.Decimal, error)
}

// TaxResolver computes taxes for a charge.
type TaxResolver interface {
	ResolveCharge(ctx context.Context, in tax.ChargeInput) ([]tax.Application, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ChangeNotifier is told after a ledger write commits so read models can refresh.
type ChangeNotifier interface {
	Bump(ctx context.Context) error
}
