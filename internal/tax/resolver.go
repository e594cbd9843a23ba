package tax

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Resolve computes the ordered tax applications of the rates matching point.
//
// Rates are ordered topologically on their ApplyAfter edges (restricted to the
// matching set), ties broken by ascending id. A rate with dependencies in the set
// compounds: its taxable base is the amount plus the taxes of those dependencies.
// Any cycle or unknown posting type fails the whole resolution.
func Resolve(amount decimal.Decimal, rates []Rate, point ApplyPoint) ([]Application, error) {
	matching := make([]Rate, 0, len(rates))
	for _, rate := range rates {
		if rate.Point() == point {
			matching = append(matching, rate)
		}
	}
	return ResolveDiscounted(amount, amount, matching)
}

// ResolveDiscounted orders every rate in one dependency graph and computes each
// on its own base: gross before the discount, net after it. Before-discount
// rates come first among ready rates. A before-discount rate may not depend on
// an after-discount one.
func ResolveDiscounted(gross, net decimal.Decimal, rates []Rate) ([]Application, error) {
	selected := make(map[int64]Rate, len(rates))
	for _, rate := range rates {
		if err := validateRate(rate); err != nil {
			return nil, err
		}
		selected[rate.ID] = rate
	}
	if len(selected) == 0 {
		return nil, nil
	}

	order, err := topoOrder(selected)
	if err != nil {
		return nil, err
	}
	for _, id := range order {
		rate := selected[id]
		if rate.Point() != BeforeDiscount {
			continue
		}
		for _, dep := range rate.ApplyAfter {
			if other, ok := selected[dep]; ok && other.Point() == AfterDiscount {
				return nil, configError("before-discount rate %d depends on after-discount rate %d", id, dep)
			}
		}
	}

	applied := make(map[int64]decimal.Decimal, len(order))
	out := make([]Application, 0, len(order))
	for _, id := range order {
		rate := selected[id]
		base := gross
		if rate.Point() == AfterDiscount {
			base = net
		}
		for _, dep := range uniqueIDs(rate.ApplyAfter) {
			if taxed, ok := applied[dep]; ok {
				base = base.Add(taxed)
			}
		}
		taxAmount := computeRate(rate, base)
		applied[id] = taxAmount
		out = append(out, Application{
			TaxRateID:   id,
			Name:        rate.Name,
			TaxableBase: base,
			TaxAmount:   taxAmount,
		})
	}
	return out, nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validateRate(rate Rate) error {
	switch rate.PostingType {
	case PostingFlatAmount, PostingFlatPercentage:
		return nil
	case PostingSlab:
		if len(rate.Slabs) == 0 {
			return configError("rate %d is a slab rate without slabs", rate.ID)
		}
		return nil
	default:
		return configError("rate %d has unknown posting type %q", rate.ID, rate.PostingType)
	}
}

func computeRate(rate Rate, base decimal.Decimal) decimal.Decimal {
	switch rate.PostingType {
	case PostingFlatAmount:
		return rate.Amount.Round(2)
	case PostingFlatPercentage:
		return base.Mul(rate.Percentage).Div(hundred).Round(2)
	case PostingSlab:
		for _, slab := range rate.Slabs {
			if !slab.contains(base) {
				continue
			}
			if !slab.Amount.IsZero() {
				return slab.Amount.Round(2)
			}
			return base.Mul(slab.Percentage).Div(hundred).Round(2)
		}
	}
	return decimal.Zero
}

// topoOrder runs Kahn's algorithm. Among ready rates, before-discount ones are
// released first, then the smallest id.
func topoOrder(rates map[int64]Rate) ([]int64, error) {
	indegree := make(map[int64]int, len(rates))
	dependents := make(map[int64][]int64, len(rates))
	for id, rate := range rates {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
		}
		seen := make(map[int64]struct{}, len(rate.ApplyAfter))
		for _, dep := range rate.ApplyAfter {
			if _, ok := rates[dep]; !ok {
				continue
			}
			if _, dup := seen[dep]; dup {
				continue
			}
			if dep == id {
				return nil, configError("rate %d depends on itself", id)
			}
			seen[dep] = struct{}{}
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	ready := make([]int64, 0, len(rates))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sortReady(ready, rates)

	order := make([]int64, 0, len(rates))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		released := false
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				released = true
			}
		}
		if released {
			sortReady(ready, rates)
		}
	}

	if len(order) != len(rates) {
		stuck := make([]int64, 0, len(rates)-len(order))
		for id, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		sortIDs(stuck)
		return nil, configError("dependency cycle between rates %v", stuck)
	}
	return order, nil
}

func sortReady(ids []int64, rates map[int64]Rate) {
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := rates[ids[i]].Point(), rates[ids[j]].Point()
		if pi != pj {
			return pi == BeforeDiscount
		}
		return ids[i] < ids[j]
	})
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
