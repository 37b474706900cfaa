package ledger

import "github.com/shopspring/decimal"

// Decimal scales: quantities and unit/average costs carry 4 fractional digits,
// monetary totals 2. Keeping cost precision above money precision stops
// rounding drift from compounding across long recompute chains.
const (
	qtyScale   = 4
	costScale  = 4
	moneyScale = 2
)

var hundred = decimal.NewFromInt(100)

// CostState is the running balance a movement builds on: the previous
// movement's balance quantity, balance value and average cost, or all zeros
// when no earlier movement exists.
type CostState struct {
	Qty     decimal.Decimal
	Value   decimal.Decimal
	AvgCost decimal.Decimal
}

// CostResult holds every derived field of a movement.
type CostResult struct {
	QtyIn        decimal.Decimal
	QtyOut       decimal.Decimal
	UnitCost     decimal.Decimal
	AvgCost      decimal.Decimal
	ValueIn      decimal.Decimal
	ValueOut     decimal.Decimal
	BalanceQty   decimal.Decimal
	BalanceValue decimal.Decimal
	GSTIn        decimal.Decimal
	GSTOut       decimal.Decimal
}

// Next returns the seed state for the movement that follows this result.
func (r CostResult) Next() CostState {
	return CostState{Qty: r.BalanceQty, Value: r.BalanceValue, AvgCost: r.AvgCost}
}

// ApplyCosting is the weighted-average costing engine: a pure function from
// the previous state plus one movement's inputs to that movement's derived
// fields. Adjustments are folded into the inward/outward formulas as a
// synthetic delta against the target quantity, so there is no third code path.
func ApplyCosting(prev CostState, kind Kind, quantity, unitPrice, gstRate decimal.Decimal) CostResult {
	switch kind.Direction() {
	case DirectionOutward:
		return costOutward(prev, quantity, unitPrice, gstRate)
	case DirectionAbsolute:
		target := quantity
		if target.GreaterThanOrEqual(prev.Qty) {
			return costInward(prev, target.Sub(prev.Qty), unitPrice, gstRate)
		}
		return costOutward(prev, prev.Qty.Sub(target), unitPrice, gstRate)
	default:
		return costInward(prev, quantity, unitPrice, gstRate)
	}
}

func costInward(prev CostState, qtyIn, unitPrice, gstRate decimal.Decimal) CostResult {
	qtyIn = qtyIn.Round(qtyScale)
	unitCost := unitPrice.Round(costScale)
	valueIn := qtyIn.Mul(unitPrice).Round(moneyScale)
	balanceQty := prev.Qty.Add(qtyIn)
	balanceValue := prev.Value.Add(valueIn).Round(moneyScale)

	avgCost := unitCost
	if balanceQty.IsPositive() {
		avgCost = balanceValue.Div(balanceQty).Round(costScale)
	}

	return CostResult{
		QtyIn:        qtyIn,
		UnitCost:     unitCost,
		AvgCost:      avgCost,
		ValueIn:      valueIn,
		BalanceQty:   balanceQty,
		BalanceValue: balanceValue,
		GSTIn:        gstAmount(valueIn, gstRate),
	}
}

func costOutward(prev CostState, qtyOut, unitPrice, gstRate decimal.Decimal) CostResult {
	qtyOut = qtyOut.Round(qtyScale)
	// Outward movements consume at the average cost prevailing before the
	// movement, never at the stated price: selling above or below cost must
	// not leak profit or loss into the stock valuation. The stated price is
	// only used when no inward movement has ever set an average cost.
	costBasis := prev.AvgCost
	if !costBasis.IsPositive() {
		costBasis = unitPrice.Round(costScale)
	}
	valueOut := qtyOut.Mul(costBasis).Round(moneyScale)
	balanceQty := prev.Qty.Sub(qtyOut)
	balanceValue := prev.Value.Sub(valueOut).Round(moneyScale)

	return CostResult{
		QtyOut:       qtyOut,
		UnitCost:     costBasis,
		AvgCost:      costBasis,
		ValueOut:     valueOut,
		BalanceQty:   balanceQty,
		BalanceValue: balanceValue,
		GSTOut:       gstAmount(valueOut, gstRate),
	}
}

func gstAmount(value, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	return value.Mul(rate).Div(hundred).Round(moneyScale)
}

// costQuantity extracts the costing-engine quantity argument from a stored
// movement: the absolute target for adjustments, the recorded delta otherwise.
func costQuantity(m Movement) decimal.Decimal {
	if m.Kind == KindAdjustment && m.TargetQty.Valid {
		return m.TargetQty.Decimal
	}
	if m.Kind.Direction() == DirectionOutward {
		return m.QtyOut
	}
	return m.QtyIn
}

// applyDerived writes a costing result back onto a movement.
func applyDerived(m *Movement, r CostResult) {
	m.QtyIn = r.QtyIn
	m.QtyOut = r.QtyOut
	m.UnitCost = r.UnitCost
	m.AvgCost = r.AvgCost
	m.ValueIn = r.ValueIn
	m.ValueOut = r.ValueOut
	m.BalanceQty = r.BalanceQty
	m.BalanceValue = r.BalanceValue
	m.GSTIn = r.GSTIn
	m.GSTOut = r.GSTOut
}

// derivedEqual reports whether the stored derived fields already match the
// recomputed result; the cascade skips writes for unchanged rows.
func derivedEqual(m Movement, r CostResult) bool {
	return m.QtyIn.Equal(r.QtyIn) &&
		m.QtyOut.Equal(r.QtyOut) &&
		m.UnitCost.Equal(r.UnitCost) &&
		m.AvgCost.Equal(r.AvgCost) &&
		m.ValueIn.Equal(r.ValueIn) &&
		m.ValueOut.Equal(r.ValueOut) &&
		m.BalanceQty.Equal(r.BalanceQty) &&
		m.BalanceValue.Equal(r.BalanceValue) &&
		m.GSTIn.Equal(r.GSTIn) &&
		m.GSTOut.Equal(r.GSTOut)
}
