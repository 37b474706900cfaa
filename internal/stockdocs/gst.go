package stockdocs

import (
	"github.com/shopspring/decimal"

	"github.com/afco-erp/afco-erp/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// LineTotals are the derived money fields of one invoice line.
type LineTotals struct {
	AmountExGST  decimal.Decimal
	GSTRate      decimal.Decimal
	GSTAmount    decimal.Decimal
	AmountIncGST decimal.Decimal
}

// ComputeLineTotals derives a line's totals from whichever of rate and amount
// the caller supplied. Rate wins when both arrive: the stored amount is then
// recomputed from the rate so the document carries a single source of truth.
// With only an amount, the rate is back-solved from the ex-GST value.
func ComputeLineTotals(qty, unitPrice decimal.Decimal, rate, amount decimal.NullDecimal) (LineTotals, error) {
	ex := qty.Mul(unitPrice).Round(2)

	switch {
	case rate.Valid:
		if rate.Decimal.IsNegative() || rate.Decimal.GreaterThan(hundred) {
			return LineTotals{}, shared.InvalidArgumentf("gst_rate", "must be between 0 and 100")
		}
		gst := ex.Mul(rate.Decimal).Div(hundred).Round(2)
		return LineTotals{AmountExGST: ex, GSTRate: rate.Decimal, GSTAmount: gst, AmountIncGST: ex.Add(gst)}, nil
	case amount.Valid:
		if amount.Decimal.IsNegative() {
			return LineTotals{}, shared.InvalidArgumentf("gst_amount", "must not be negative")
		}
		gst := amount.Decimal.Round(2)
		solved := decimal.Zero
		if ex.IsPositive() {
			solved = gst.Mul(hundred).Div(ex).Round(2)
		}
		if solved.GreaterThan(hundred) {
			return LineTotals{}, shared.InvalidArgumentf("gst_amount", "implies a rate above 100%%")
		}
		return LineTotals{AmountExGST: ex, GSTRate: solved, GSTAmount: gst, AmountIncGST: ex.Add(gst)}, nil
	default:
		return LineTotals{AmountExGST: ex, GSTRate: decimal.Zero, GSTAmount: decimal.Zero, AmountIncGST: ex}, nil
	}
}
