package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestApplyCostingWeightedAverage(t *testing.T) {
	first := ApplyCosting(CostState{}, KindPurchase, dec("100"), dec("10"), decimal.Zero)
	require.True(t, first.BalanceQty.Equal(dec("100")))
	require.True(t, first.BalanceValue.Equal(dec("1000")))
	require.True(t, first.AvgCost.Equal(dec("10")))

	second := ApplyCosting(first.Next(), KindPurchase, dec("50"), dec("16"), decimal.Zero)
	require.True(t, second.BalanceQty.Equal(dec("150")))
	require.True(t, second.BalanceValue.Equal(dec("1800")))
	require.True(t, second.AvgCost.Equal(dec("12")), "avg cost %s", second.AvgCost)
}

func TestApplyCostingOutwardConsumesAtAvgCost(t *testing.T) {
	state := CostState{Qty: dec("150"), Value: dec("1800"), AvgCost: dec("12")}

	// Selling price is far above cost; the valuation must not move.
	sale := ApplyCosting(state, KindSale, dec("60"), dec("20"), decimal.Zero)
	require.True(t, sale.ValueOut.Equal(dec("720")))
	require.True(t, sale.BalanceQty.Equal(dec("90")))
	require.True(t, sale.BalanceValue.Equal(dec("1080")))
	require.True(t, sale.AvgCost.Equal(dec("12")))
	require.True(t, sale.UnitCost.Equal(dec("12")))
}

func TestApplyCostingOutwardWithoutHistoryFallsBackToPrice(t *testing.T) {
	sale := ApplyCosting(CostState{}, KindSale, dec("5"), dec("7"), decimal.Zero)
	require.True(t, sale.UnitCost.Equal(dec("7")))
	require.True(t, sale.ValueOut.Equal(dec("35")))
	require.True(t, sale.BalanceQty.Equal(dec("-5")))
}

func TestApplyCostingAdjustmentDown(t *testing.T) {
	state := CostState{Qty: dec("90"), Value: dec("1080"), AvgCost: dec("12")}

	adj := ApplyCosting(state, KindAdjustment, dec("80"), dec("15"), decimal.Zero)
	require.True(t, adj.QtyOut.Equal(dec("10")))
	require.True(t, adj.ValueOut.Equal(dec("120")), "shrinkage leaves at avg cost, got %s", adj.ValueOut)
	require.True(t, adj.BalanceQty.Equal(dec("80")))
	require.True(t, adj.BalanceValue.Equal(dec("960")))
}

func TestApplyCostingAdjustmentUp(t *testing.T) {
	state := CostState{Qty: dec("80"), Value: dec("960"), AvgCost: dec("12")}

	adj := ApplyCosting(state, KindAdjustment, dec("100"), dec("15"), decimal.Zero)
	require.True(t, adj.QtyIn.Equal(dec("20")))
	require.True(t, adj.ValueIn.Equal(dec("300")), "found stock enters at stated price")
	require.True(t, adj.BalanceQty.Equal(dec("100")))
	require.True(t, adj.BalanceValue.Equal(dec("1260")))
}

func TestApplyCostingGST(t *testing.T) {
	purchase := ApplyCosting(CostState{}, KindPurchase, dec("10"), dec("100"), dec("17"))
	require.True(t, purchase.ValueIn.Equal(dec("1000")))
	require.True(t, purchase.GSTIn.Equal(dec("170")))
	require.True(t, purchase.GSTOut.IsZero())

	sale := ApplyCosting(purchase.Next(), KindSale, dec("4"), dec("150"), dec("17"))
	// GST on an outward movement follows the cost-based value leaving stock.
	require.True(t, sale.ValueOut.Equal(dec("400")))
	require.True(t, sale.GSTOut.Equal(dec("68")))
}

func TestApplyCostingRoundsMoneyToTwoPlaces(t *testing.T) {
	r := ApplyCosting(CostState{}, KindPurchase, dec("3"), dec("10.333"), dec("17"))
	require.True(t, r.ValueIn.Equal(dec("31.00")), "got %s", r.ValueIn)
	require.True(t, r.GSTIn.Equal(dec("5.27")), "got %s", r.GSTIn)
	require.True(t, r.AvgCost.Equal(dec("10.3333")), "avg cost keeps 4 decimals, got %s", r.AvgCost)
}
