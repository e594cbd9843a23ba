package nightaudit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-folio/internal/folio"
)

// SummaryInput is everything the day snapshot is derived from.
type SummaryInput struct {
	HotelID     int64
	AuditDate   time.Time
	Postings    []folio.Transaction
	Rooms       RoomCounts
	Guests      GuestActivity
	Outstanding decimal.Decimal
	RunID       uuid.UUID
	GeneratedAt time.Time
}

var hundred = decimal.NewFromInt(100)

// BuildSummary aggregates the day's postings and counters into a fact row.
// Copied room postings are skipped so a shared stay is counted once.
func BuildSummary(in SummaryInput) DailySummaryFact {
	room, fnb, other := decimal.Zero, decimal.Zero, decimal.Zero
	counted := make([]folio.Transaction, 0, len(in.Postings))
	for _, txn := range in.Postings {
		if txn.IsVoided || txn.IsCopy() {
			continue
		}
		counted = append(counted, txn)
		if !isRevenue(txn) {
			continue
		}
		switch txn.Category {
		case folio.CategoryRoom:
			room = room.Add(txn.Amount)
		case folio.CategoryFoodBeverage:
			fnb = fnb.Add(txn.Amount)
		default:
			other = other.Add(txn.Amount)
		}
	}
	totals := folio.ComputeTotals(counted)

	available := in.Rooms.Total - in.Rooms.OutOfOrder
	if available < 0 {
		available = 0
	}
	fact := DailySummaryFact{
		HotelID:                in.HotelID,
		AuditDate:              in.AuditDate,
		RoomRevenue:            room.Round(2),
		FoodBeverageRevenue:    fnb.Round(2),
		OtherRevenue:           other.Round(2),
		TotalRevenue:           room.Add(fnb).Add(other).Round(2),
		Taxes:                  totals.Taxes.Round(2),
		ServiceCharges:         totals.ServiceCharges.Round(2),
		Discounts:              totals.Discounts.Round(2),
		TotalRooms:             in.Rooms.Total,
		OutOfOrderRooms:        in.Rooms.OutOfOrder,
		AvailableRooms:         available,
		OccupiedRooms:          in.Rooms.Occupied,
		OccupancyRate:          decimal.Zero,
		ADR:                    decimal.Zero,
		RevPAR:                 decimal.Zero,
		CheckIns:               in.Guests.CheckIns,
		CheckOuts:              in.Guests.CheckOuts,
		NoShows:                in.Guests.NoShows,
		Cancellations:          in.Guests.Cancellations,
		Bookings:               in.Guests.Bookings,
		PaymentsReceived:       totals.Payments.Round(2),
		OutstandingReceivables: in.Outstanding.Round(2),
		RunID:                  in.RunID,
		GeneratedAt:            in.GeneratedAt,
	}
	if available > 0 {
		avail := decimal.NewFromInt(int64(available))
		fact.OccupancyRate = decimal.NewFromInt(int64(in.Rooms.Occupied)).Mul(hundred).Div(avail).Round(2)
		fact.RevPAR = room.Div(avail).Round(2)
	}
	if in.Rooms.Occupied > 0 {
		fact.ADR = room.Div(decimal.NewFromInt(int64(in.Rooms.Occupied))).Round(2)
	}
	return fact
}

// isRevenue keeps rows that move the charge bucket. Transfer legs net to zero
// within a hotel and are left out.
func isRevenue(txn folio.Transaction) bool {
	if txn.Type == folio.TxTransfer {
		return false
	}
	bucket := txn.AppliesTo
	if bucket == "" {
		bucket = txn.Type
	}
	switch bucket {
	case folio.TxCharge, folio.TxRoomPosting:
		return true
	}
	return false
}
