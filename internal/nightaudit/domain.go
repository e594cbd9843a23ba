package nightaudit

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

// Payload is the NIGHT_AUDIT job payload.
type Payload struct {
	AuditDate  string `json:"auditDate" validate:"required,datetime=2006-01-02"`
	HotelID    int64  `json:"hotelId" validate:"required,gt=0"`
	UserID     int64  `json:"userId" validate:"required,gt=0"`
	SkipReport bool   `json:"skipReport"`
}

// Validate checks the payload shape.
func (p Payload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("nightaudit: invalid payload: %w", err)
	}
	return nil
}

// Date parses the audit date as a UTC calendar day.
func (p Payload) Date() (time.Time, error) {
	return time.ParseInLocation(dateLayout, p.AuditDate, time.UTC)
}

// RunStatus captures the lifecycle of one (hotel, date) audit.
type RunStatus string

const (
	RunNotStarted RunStatus = "not_started"
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Run is the persisted state of an audit for one hotel and date.
type Run struct {
	ID            uuid.UUID
	HotelID       int64
	AuditDate     time.Time
	Status        RunStatus
	StartedAt     time.Time
	FinishedAt    *time.Time
	LastError     string
	ChargesPosted int
	// ClosedAt is when the day was first closed. Later attempts keep it.
	ClosedAt *time.Time
}

// Reservation is an in-house stay as seen by the audit.
type Reservation struct {
	ID                int64
	ReservationRoomID int64
	RoomID            int64
	RoomNumber        string
	GuestID           int64
	RoomRate          decimal.Decimal
}

// RoomCounts is the hotel inventory for the audit date.
type RoomCounts struct {
	Total      int
	OutOfOrder int
	Occupied   int
}

// GuestActivity counts reservation movements on the audit date.
type GuestActivity struct {
	CheckIns      int
	CheckOuts     int
	NoShows       int
	Cancellations int
	Bookings      int
}

// DailySummaryFact is the frozen snapshot of one hotel day.
type DailySummaryFact struct {
	HotelID                int64           `json:"hotel_id"`
	AuditDate              time.Time       `json:"audit_date"`
	RoomRevenue            decimal.Decimal `json:"room_revenue"`
	FoodBeverageRevenue    decimal.Decimal `json:"food_beverage_revenue"`
	OtherRevenue           decimal.Decimal `json:"other_revenue"`
	TotalRevenue           decimal.Decimal `json:"total_revenue"`
	Taxes                  decimal.Decimal `json:"taxes"`
	ServiceCharges         decimal.Decimal `json:"service_charges"`
	Discounts              decimal.Decimal `json:"discounts"`
	TotalRooms             int             `json:"total_rooms"`
	OutOfOrderRooms        int             `json:"out_of_order_rooms"`
	AvailableRooms         int             `json:"available_rooms"`
	OccupiedRooms          int             `json:"occupied_rooms"`
	OccupancyRate          decimal.Decimal `json:"occupancy_rate"`
	ADR                    decimal.Decimal `json:"adr"`
	RevPAR                 decimal.Decimal `json:"revpar"`
	CheckIns               int             `json:"check_ins"`
	CheckOuts              int             `json:"check_outs"`
	NoShows                int             `json:"no_shows"`
	Cancellations          int             `json:"cancellations"`
	Bookings               int             `json:"bookings"`
	PaymentsReceived       decimal.Decimal `json:"payments_received"`
	OutstandingReceivables decimal.Decimal `json:"outstanding_receivables"`
	RunID                  uuid.UUID       `json:"run_id"`
	GeneratedAt            time.Time       `json:"generated_at"`
}

var (
	// ErrAuditInProgress indicates another worker holds the (hotel, date) lock.
	ErrAuditInProgress = errors.New("nightaudit: audit already running for hotel and date")
	// ErrRunNotFound indicates no audit was attempted for the hotel and date.
	ErrRunNotFound = fmt.Errorf("nightaudit: run %w", shared.ErrNotFound)
)
