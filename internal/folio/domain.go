package folio

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

// Type enumerates folio kinds.
type Type string

const (
	TypeMaster     Type = "master"
	TypeSplit      Type = "split"
	TypeGroup      Type = "group"
	TypeIndividual Type = "individual"
)

// Status enumerates folio lifecycle values.
type Status string

const (
	StatusOpen        Status = "open"
	StatusClosed      Status = "closed"
	StatusTransferred Status = "transferred"
	StatusDisputed    Status = "disputed"
)

// SettlementStatus captures how far a folio has been paid.
type SettlementStatus string

const (
	SettlementPending  SettlementStatus = "pending"
	SettlementPartial  SettlementStatus = "partial"
	SettlementSettled  SettlementStatus = "settled"
	SettlementOverdue  SettlementStatus = "overdue"
	SettlementDisputed SettlementStatus = "disputed"
)

// TransactionType enumerates ledger line kinds.
type TransactionType string

const (
	TxCharge      TransactionType = "charge"
	TxPayment     TransactionType = "payment"
	TxAdjustment  TransactionType = "adjustment"
	TxTax         TransactionType = "tax"
	TxDiscount    TransactionType = "discount"
	TxRefund      TransactionType = "refund"
	TxTransfer    TransactionType = "transfer"
	TxVoid        TransactionType = "void"
	TxCorrection  TransactionType = "correction"
	TxRoomPosting TransactionType = "room_posting"
)

// Category classifies what a transaction is for.
type Category string

const (
	CategoryRoom          Category = "room"
	CategoryFoodBeverage  Category = "food_beverage"
	CategoryTax           Category = "tax"
	CategoryServiceCharge Category = "service_charge"
	CategoryDeposit       Category = "deposit"
	CategoryPayment       Category = "payment"
	CategoryTransferIn    Category = "transfer_in"
	CategoryTransferOut   Category = "transfer_out"
	CategoryNoShowFee     Category = "no_show_fee"
	CategoryMiscellaneous Category = "miscellaneous"
	CategoryWriteOff      Category = "write_off"
	CategoryCorrection    Category = "correction"
)

// Folio is a billing container for one reservation and guest or company.
type Folio struct {
	ID                  int64
	FolioNumber         string
	HotelID             int64
	ReservationID       int64
	GuestID             int64
	CompanyAccountID    *int64
	Type                Type
	IsPrimary           bool
	Status              Status
	SettlementStatus    SettlementStatus
	Totals              Totals
	CreditLimit         decimal.Decimal
	CreditLimitExceeded bool
	CurrencyCode        string
	ExchangeRate        decimal.Decimal
	ClosedDate          *time.Time
	ClosedBy            *int64
	FinalBalance        *decimal.Decimal
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Balance is the folio's running balance.
func (f Folio) Balance() decimal.Decimal {
	return f.Totals.Balance
}

// Transaction is one posted ledger line. Amounts are signed by their effect on
// the folio balance: charges are positive, payments and credits negative.
type Transaction struct {
	ID                int64
	TransactionNumber string
	FolioID           int64
	ReservationID     int64
	HotelID           int64
	Type              TransactionType
	Category          Category

	// AppliesTo names the totals bucket the row moves. Transfers and corrections
	// inherit it from the transaction they reference.
	AppliesTo TransactionType

	Description            string
	Amount                 decimal.Decimal
	TaxAmount              decimal.Decimal
	ServiceChargeAmount    decimal.Decimal
	TotalAmount            decimal.Decimal
	CurrencyCode           string
	ExchangeRate           decimal.Decimal
	TransactionDate        time.Time
	PostingDate            time.Time
	ServiceDate            *time.Time
	ReservationRoomID      *int64
	PaymentMethodID        *int64
	IsPosted               bool
	IsVoided               bool
	VoidedAt               *time.Time
	VoidedBy               *int64
	VoidReason             string
	OriginalTransactionID  *int64
	CorrectedTransactionID *int64
	TransferredToFolioID   *int64
	PostedBy               int64
	CreatedAt              time.Time
}

// IsCopy reports whether the row is a room posting copied from another folio.
func (t Transaction) IsCopy() bool {
	return t.Type == TxRoomPosting && t.OriginalTransactionID != nil
}

// IsTransferLeg reports whether the row is one side of a transfer pair.
func (t Transaction) IsTransferLeg() bool {
	return t.Type == TxTransfer
}

var (
	// ErrFolioNotFound indicates missing folio.
	ErrFolioNotFound = fmt.Errorf("folio: folio %w", shared.ErrNotFound)
	// ErrTransactionNotFound indicates missing transaction.
	ErrTransactionNotFound = fmt.Errorf("folio: transaction %w", shared.ErrNotFound)
	// ErrAlreadyVoided indicates the transaction was voided before.
	ErrAlreadyVoided = fmt.Errorf("folio: transaction %w", shared.ErrAlreadyVoided)
	// ErrFolioClosed indicates postings against a folio that is no longer open.
	ErrFolioClosed = errors.New("folio: folio is not open")
	// ErrBusinessDayClosed indicates the posting date was frozen by night audit.
	ErrBusinessDayClosed = errors.New("folio: business day already closed by night audit")
	// ErrOutstandingBalance blocks closing a folio that still carries a balance.
	ErrOutstandingBalance = errors.New("folio: folio balance must be zero or written off")
	// ErrPrimaryFolioExists indicates a second primary folio for a reservation guest.
	ErrPrimaryFolioExists = errors.New("folio: primary folio already exists for reservation guest")
	// ErrPrimaryFolioMissing indicates the reservation has no primary folio to copy from.
	ErrPrimaryFolioMissing = fmt.Errorf("folio: primary folio %w", shared.ErrNotFound)
	// ErrAlreadyCorrected indicates the transaction already carries a correction.
	ErrAlreadyCorrected = errors.New("folio: transaction already corrected")
	// ErrInvalidTransfer covers transfers that cannot be represented as a pair.
	ErrInvalidTransfer = errors.New("folio: invalid transfer")
	// ErrDuplicateRoomCharge indicates a room posting already exists for the room and date.
	ErrDuplicateRoomCharge = errors.New("folio: room charge already posted for date")
	// ErrInvalidCorrection covers corrections of rows that cannot be corrected.
	ErrInvalidCorrection = errors.New("folio: invalid correction")
	// ErrGuestFolioExists indicates the guest already has a folio on the reservation.
	ErrGuestFolioExists = errors.New("folio: guest already has a folio on reservation")
	// ErrNotVoided indicates a repair was requested for a row that is not voided.
	ErrNotVoided = errors.New("folio: transaction is not voided")
)
