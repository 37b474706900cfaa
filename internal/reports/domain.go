package reports

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/afco-erp/afco-erp/internal/ledger"
)

// GroupBy selects the summary grouping dimension.
type GroupBy string

const (
	GroupByProduct  GroupBy = "product"
	GroupByCategory GroupBy = "category"
	GroupByHSCode   GroupBy = "hscode"
)

// Valid reports whether g is a known grouping.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupByProduct, GroupByCategory, GroupByHSCode:
		return true
	}
	return false
}

// MovementFilter narrows report queries.
type MovementFilter struct {
	ProductID  int64
	CategoryID int64
	HSCodeID   int64
	Kind       ledger.Kind
	From       time.Time
	To         time.Time
	GroupBy    GroupBy
}

// MovementRow is one ledger movement enriched with its product classification.
type MovementRow struct {
	MovementID int64       `json:"movement_id"`
	Date       time.Time   `json:"date"`
	Kind       ledger.Kind `json:"kind"`
	SourceRef  string      `json:"source_ref,omitempty"`

	ProductID    int64  `json:"product_id"`
	ProductCode  string `json:"product_code"`
	ProductName  string `json:"product_name"`
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	HSCodeID     int64  `json:"hscode_id"`
	HSCode       string `json:"hscode"`

	QtyIn        decimal.Decimal `json:"qty_in"`
	QtyOut       decimal.Decimal `json:"qty_out"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	ValueIn      decimal.Decimal `json:"value_in"`
	ValueOut     decimal.Decimal `json:"value_out"`
	BalanceQty   decimal.Decimal `json:"balance_qty"`
	BalanceValue decimal.Decimal `json:"balance_value"`
	GSTIn        decimal.Decimal `json:"gst_in"`
	GSTOut       decimal.Decimal `json:"gst_out"`
}

// SummaryRow is one group's movement totals. FinalQty and FinalValue are
// balance snapshots taken from each member product's chronologically last
// movement, not a re-sum of the flow columns.
type SummaryRow struct {
	GroupID    int64  `json:"group_id"`
	GroupLabel string `json:"group_label"`
	Movements  int    `json:"movements"`

	QtyIn    decimal.Decimal `json:"qty_in"`
	QtyOut   decimal.Decimal `json:"qty_out"`
	NetQty   decimal.Decimal `json:"net_qty"`
	ValueIn  decimal.Decimal `json:"value_in"`
	ValueOut decimal.Decimal `json:"value_out"`
	NetValue decimal.Decimal `json:"net_value"`
	GSTIn    decimal.Decimal `json:"gst_in"`
	GSTOut   decimal.Decimal `json:"gst_out"`

	FinalQty   decimal.Decimal `json:"final_qty"`
	FinalValue decimal.Decimal `json:"final_value"`
}

// ValuationRow values one product's stock on hand.
type ValuationRow struct {
	ProductID    int64  `json:"product_id"`
	ProductCode  string `json:"product_code"`
	ProductName  string `json:"product_name"`
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	HSCodeID     int64  `json:"hscode_id"`
	HSCode       string `json:"hscode"`

	CurrentQty decimal.Decimal `json:"current_qty"`
	// AvgCost comes from the last movement; CostPriceUsed marks the static
	// fallback for products that have never moved.
	AvgCost       decimal.Decimal `json:"avg_cost"`
	CostPriceUsed bool            `json:"cost_price_used"`
	StockValue    decimal.Decimal `json:"stock_value"`
}

// ValuationGroup is one group's valuation subtotal.
type ValuationGroup struct {
	GroupID    int64           `json:"group_id"`
	GroupLabel string          `json:"group_label"`
	Rows       []ValuationRow  `json:"rows"`
	TotalQty   decimal.Decimal `json:"total_qty"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// ValuationReport is the full stock valuation answer.
type ValuationReport struct {
	Groups     []ValuationGroup `json:"groups"`
	GrandTotal decimal.Decimal  `json:"grand_total"`
	AsOf       time.Time        `json:"as_of"`
}
