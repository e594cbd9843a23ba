package tax

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-folio/internal/shared"
)

// PostingType enumerates how a tax amount is derived.
type PostingType string

const (
	PostingFlatAmount     PostingType = "flat_amount"
	PostingFlatPercentage PostingType = "flat_percentage"
	PostingSlab           PostingType = "slab"
)

// ApplyPoint selects which side of a discount a rate is computed on.
type ApplyPoint string

const (
	BeforeDiscount ApplyPoint = "before_discount"
	AfterDiscount  ApplyPoint = "after_discount"
)

// Rate is a configured tax with its dependency edges.
type Rate struct {
	ID                 int64
	Name               string
	PostingType        PostingType
	Percentage         decimal.Decimal
	Amount             decimal.Decimal
	Slabs              []Slab
	ApplyAfterDiscount bool
	// ApplyAfter lists rate ids that must be applied before this one.
	ApplyAfter []int64
}

// Point reports the rate's apply point.
func (r Rate) Point() ApplyPoint {
	if r.ApplyAfterDiscount {
		return AfterDiscount
	}
	return BeforeDiscount
}

// Slab is a bracket of a slab rate. A zero To means unbounded.
type Slab struct {
	From       decimal.Decimal
	To         decimal.Decimal
	Percentage decimal.Decimal
	Amount     decimal.Decimal
}

func (s Slab) contains(base decimal.Decimal) bool {
	if base.LessThan(s.From) {
		return false
	}
	return s.To.IsZero() || base.LessThanOrEqual(s.To)
}

// Application is one resolved tax line.
type Application struct {
	TaxRateID   int64           `json:"tax_rate_id"`
	Name        string          `json:"name"`
	TaxableBase decimal.Decimal `json:"taxable_base"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
}

// Sum totals the tax amount of the applications.
func Sum(apps []Application) decimal.Decimal {
	total := decimal.Zero
	for _, app := range apps {
		total = total.Add(app.TaxAmount)
	}
	return total
}

var (
	// ErrConfiguration wraps every fatal tax setup problem.
	ErrConfiguration = fmt.Errorf("tax: %w", shared.ErrConfiguration)
	// ErrRateNotFound indicates a requested rate id is unknown.
	ErrRateNotFound = errors.New("tax: rate not found")
)

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
