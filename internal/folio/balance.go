package folio

import (
	"github.com/shopspring/decimal"
)

// Totals are the running breakdown of a folio. Payments, discounts and
// adjustments are reported as positive credits.
type Totals struct {
	Charges        decimal.Decimal `json:"charges"`
	Payments       decimal.Decimal `json:"payments"`
	Adjustments    decimal.Decimal `json:"adjustments"`
	Taxes          decimal.Decimal `json:"taxes"`
	ServiceCharges decimal.Decimal `json:"service_charges"`
	Discounts      decimal.Decimal `json:"discounts"`
	Balance        decimal.Decimal `json:"balance"`
}

// ComputeTotals derives folio totals from its history. Voided rows are ignored.
//
// Because rows are stored signed, Balance always equals the sum of TotalAmount
// across the non-voided rows.
func ComputeTotals(txns []Transaction) Totals {
	t := Totals{
		Charges:        decimal.Zero,
		Payments:       decimal.Zero,
		Adjustments:    decimal.Zero,
		Taxes:          decimal.Zero,
		ServiceCharges: decimal.Zero,
		Discounts:      decimal.Zero,
	}
	for _, txn := range txns {
		if txn.IsVoided {
			continue
		}
		t.Taxes = t.Taxes.Add(txn.TaxAmount)
		t.ServiceCharges = t.ServiceCharges.Add(txn.ServiceChargeAmount)
		switch bucketOf(txn) {
		case TxTax:
			t.Taxes = t.Taxes.Add(txn.Amount)
		case TxPayment, TxRefund:
			t.Payments = t.Payments.Sub(txn.Amount)
		case TxDiscount:
			t.Discounts = t.Discounts.Sub(txn.Amount)
		case TxAdjustment:
			t.Adjustments = t.Adjustments.Sub(txn.Amount)
		default:
			t.Charges = t.Charges.Add(txn.Amount)
		}
	}
	t.Balance = t.Charges.Add(t.Taxes).Add(t.ServiceCharges).
		Sub(t.Payments).Sub(t.Discounts).Sub(t.Adjustments)
	return t
}

// SumEffect is the plain signed sum of non-voided rows.
func SumEffect(txns []Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, txn := range txns {
		if !txn.IsVoided {
			sum = sum.Add(txn.TotalAmount)
		}
	}
	return sum
}

func bucketOf(txn Transaction) TransactionType {
	if txn.AppliesTo != "" {
		return txn.AppliesTo
	}
	return txn.Type
}

// signFor reports the balance direction of a transaction type entered as a
// positive magnitude.
func signFor(tt TransactionType) decimal.Decimal {
	switch tt {
	case TxPayment, TxDiscount, TxAdjustment:
		return decimal.NewFromInt(-1)
	default:
		return decimal.NewFromInt(1)
	}
}

// settlementFor derives the settlement status after a recompute. Disputed and
// overdue are owned by collections and kept as-is.
func settlementFor(current SettlementStatus, t Totals) SettlementStatus {
	switch current {
	case SettlementDisputed, SettlementOverdue:
		if t.Balance.IsPositive() {
			return current
		}
	}
	switch {
	case !t.Balance.IsPositive() && (t.Payments.IsPositive() || t.Charges.IsPositive()):
		return SettlementSettled
	case t.Payments.IsPositive():
		return SettlementPartial
	default:
		return SettlementPending
	}
}
