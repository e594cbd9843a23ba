package folio

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// PostInput describes a new ledger posting. Amount is a positive magnitude; the
// ledger applies the sign of the transaction type.
type PostInput struct {
	FolioID             int64           `validate:"required"`
	Type                TransactionType `validate:"required,oneof=charge payment adjustment tax discount refund room_posting"`
	Category            Category        `validate:"required"`
	Description         string          `validate:"max=255"`
	Amount              decimal.Decimal
	ServiceChargeAmount decimal.Decimal
	// Discount granted on a charge. It is posted as a linked discount row and
	// splits before/after-discount taxes.
	Discount          decimal.Decimal
	TaxRateIDs        []int64
	SkipTaxes         bool
	TransactionDate   time.Time
	PostingDate       time.Time
	ServiceDate       *time.Time
	ReservationRoomID *int64
	PaymentMethodID   *int64
	PostedBy          int64 `validate:"required"`
	// AllowClosedDay lets night audit post into the day it is closing.
	AllowClosedDay bool
}

// Validate ensures posting input meets minimum criteria.
func (in PostInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("folio: invalid posting: %w", err)
	}
	if !in.Amount.IsPositive() {
		return errors.New("folio: amount must be positive")
	}
	if in.ServiceChargeAmount.IsNegative() || in.Discount.IsNegative() {
		return errors.New("folio: service charge and discount cannot be negative")
	}
	if in.Discount.GreaterThan(in.Amount) {
		return errors.New("folio: discount exceeds amount")
	}
	if !in.Discount.IsZero() && !isTaxable(in.Type) {
		return errors.New("folio: discount only applies to charges")
	}
	if in.Type == TxPayment && in.PaymentMethodID == nil {
		return errors.New("folio: payment method required")
	}
	if in.Type == TxRoomPosting && (in.ReservationRoomID == nil || in.ServiceDate == nil) {
		return errors.New("folio: room posting requires reservation room and service date")
	}
	return nil
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	TransactionID int64  `validate:"required"`
	VoidedBy      int64  `validate:"required"`
	Reason        string `validate:"required,max=255"`
	// Override allows voiding on closed folios; reserved for audited repairs.
	Override bool
}

// TransferInput moves a transaction, fully or partially, to another folio.
type TransferInput struct {
	TransactionID      int64 `validate:"required"`
	DestinationFolioID int64 `validate:"required"`
	// Amount is a positive magnitude; zero transfers the remaining amount.
	Amount      decimal.Decimal
	Description string `validate:"max=255"`
	PostedBy    int64  `validate:"required"`
}

// CorrectInput replaces the amount of a posted transaction via a correction row.
type CorrectInput struct {
	TransactionID int64 `validate:"required"`
	// NewAmount is the corrected total as a positive magnitude.
	NewAmount decimal.Decimal
	Reason    string `validate:"required,max=255"`
	PostedBy  int64  `validate:"required"`
}

// RepairInput voids transfers left behind by an already voided transaction.
type RepairInput struct {
	TransactionID int64 `validate:"required"`
	Actor         int64 `validate:"required"`
}

// OpenInput opens a new folio.
type OpenInput struct {
	HotelID          int64 `validate:"required"`
	ReservationID    int64 `validate:"required"`
	GuestID          int64
	CompanyAccountID *int64
	Type             Type `validate:"required,oneof=master split group individual"`
	IsPrimary        bool
	CreditLimit      decimal.Decimal
	CurrencyCode     string `validate:"omitempty,len=3"`
	ExchangeRate     decimal.Decimal
	OpenedBy         int64 `validate:"required"`
}

// AddGuestInput opens a per-guest folio on a confirmed reservation.
type AddGuestInput struct {
	ReservationID int64 `validate:"required"`
	GuestID       int64 `validate:"required"`
	OpenedBy      int64 `validate:"required"`
}

// CloseInput closes a folio.
type CloseInput struct {
	FolioID  int64 `validate:"required"`
	ClosedBy int64 `validate:"required"`
	// WriteOff posts the outstanding balance as a write-off before closing.
	WriteOff       bool
	WriteOffReason string `validate:"max=255"`
}

// VoidResult lists everything a void touched.
type VoidResult struct {
	Voided []Transaction
	Folios []Folio
}

// TransferResult holds the linked pair and both refreshed folios.
type TransferResult struct {
	TransferOut Transaction
	TransferIn  Transaction
	Source      Folio
	Destination Folio
}

func validateStruct(prefix string, in any) error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("folio: invalid %s: %w", prefix, err)
	}
	return nil
}

func isTaxable(tt TransactionType) bool {
	return tt == TxCharge || tt == TxRoomPosting
}
