package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/afco-erp/afco-erp/internal/shared"
)

// Kind enumerates stock-affecting movement kinds.
type Kind string

const (
	KindPurchase       Kind = "purchase"
	KindSale           Kind = "sale"
	KindExport         Kind = "export"
	KindImport         Kind = "import"
	KindSaleReturn     Kind = "sale_return"
	KindPurchaseReturn Kind = "purchase_return"
	KindAdjustment     Kind = "adjustment"
	KindOpening        Kind = "opening"
)

// Direction of a movement's effect on stock quantity.
type Direction int

const (
	// DirectionInward increases stock (purchase, import, sale return, opening).
	DirectionInward Direction = iota
	// DirectionOutward decreases stock (sale, export, purchase return).
	DirectionOutward
	// DirectionAbsolute sets the balance to a target quantity (adjustment).
	DirectionAbsolute
)

// Valid reports whether k is a known movement kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPurchase, KindSale, KindExport, KindImport,
		KindSaleReturn, KindPurchaseReturn, KindAdjustment, KindOpening:
		return true
	}
	return false
}

// Direction maps the kind onto its stock effect.
func (k Kind) Direction() Direction {
	switch k {
	case KindSale, KindExport, KindPurchaseReturn:
		return DirectionOutward
	case KindAdjustment:
		return DirectionAbsolute
	default:
		return DirectionInward
	}
}

// Movement is one immutable stock-affecting event. Input fields are fixed at
// creation; derived fields are rewritten by the recompute cascade whenever an
// earlier movement for the same product is inserted or removed.
type Movement struct {
	ID    int64
	Scope shared.Scope

	ProductID int64
	Kind      Kind
	// Date is the ordering key. Creation order (ID) breaks ties on equal dates.
	Date      time.Time
	SourceRef string
	PartyID   int64
	// Back-reference to the originating document line, zero for manual entries.
	DocumentID     int64
	DocumentLineID int64

	QtyIn     decimal.Decimal
	QtyOut    decimal.Decimal
	TargetQty decimal.NullDecimal // absolute target, adjustment kind only
	UnitPrice decimal.Decimal
	GSTRate   decimal.Decimal

	// Derived fields, strict functions of the previous movement's balances.
	UnitCost     decimal.Decimal
	AvgCost      decimal.Decimal
	ValueIn      decimal.Decimal
	ValueOut     decimal.Decimal
	BalanceQty   decimal.Decimal
	BalanceValue decimal.Decimal
	GSTIn        decimal.Decimal
	GSTOut       decimal.Decimal

	CreatedBy int64
	CreatedAt time.Time
}

// RecordInput carries the caller-supplied fields of a new movement.
// Quantity is a positive delta for inward/outward kinds and an absolute
// target (>= 0) for adjustments.
type RecordInput struct {
	ProductID      int64
	Kind           Kind
	Date           time.Time
	SourceRef      string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	GSTRate        decimal.Decimal
	PartyID        int64
	DocumentID     int64
	DocumentLineID int64
	ActorID        int64
}

// Product is the slice of the registry the ledger needs: identity, scope,
// and the cached balance it maintains.
type Product struct {
	ID         int64
	CompanyID  int64
	Code       string
	GSTRate    decimal.Decimal
	CostPrice  decimal.Decimal
	CurrentQty decimal.Decimal
}
