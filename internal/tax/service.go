package tax

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// RateSource loads configured rates.
type RateSource interface {
	RatesByID(ctx context.Context, ids []int64) ([]Rate, error)
	RateIDsForCategory(ctx context.Context, hotelID int64, category string) ([]int64, error)
}

// ChargeInput describes a charge that needs taxes resolved.
type ChargeInput struct {
	HotelID  int64
	Category string
	Gross    decimal.Decimal
	Discount decimal.Decimal
	// RateIDs overrides the category lookup when non-empty.
	RateIDs []int64
}

// Service resolves taxes for ledger postings.
type Service struct {
	rates RateSource
}

// NewService constructs the tax service.
func NewService(rates RateSource) *Service {
	return &Service{rates: rates}
}

// ResolveCharge resolves before-discount rates on the gross amount and
// after-discount rates on the net amount, all in one dependency order.
func (s *Service) ResolveCharge(ctx context.Context, in ChargeInput) ([]Application, error) {
	ids := in.RateIDs
	if len(ids) == 0 {
		if in.Category == "" {
			return nil, nil
		}
		var err error
		ids, err = s.rates.RateIDsForCategory(ctx, in.HotelID, in.Category)
		if err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rates, err := s.rates.RatesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	if missing := missingIDs(ids, rates); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrRateNotFound, missing)
	}

	return ResolveDiscounted(in.Gross, in.Gross.Sub(in.Discount), rates)
}

func missingIDs(ids []int64, rates []Rate) []int64 {
	known := make(map[int64]struct{}, len(rates))
	for _, r := range rates {
		known[r.ID] = struct{}{}
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
