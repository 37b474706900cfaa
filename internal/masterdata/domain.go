package masterdata

import (
	"time"

	"github.com/shopspring/decimal"
)

var decimalHundred = decimal.NewFromInt(100)

// HSCode is a harmonized-system tariff code. Codes are unique per company and
// carry at least six digits, ignoring the conventional dot separators.
type HSCode struct {
	ID          int64     `json:"id"`
	CompanyID   int64     `json:"company_id"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Category groups products under an HS code; (company, hscode, name) is unique.
type Category struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	HSCodeID  int64     `json:"hscode_id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PartyKind says which side of a trade a party can sit on.
type PartyKind string

const (
	PartySupplier PartyKind = "supplier"
	PartyCustomer PartyKind = "customer"
	PartyBoth     PartyKind = "both"
)

// Valid reports whether k is a known party kind.
func (k PartyKind) Valid() bool {
	switch k {
	case PartySupplier, PartyCustomer, PartyBoth:
		return true
	}
	return false
}

// CanSupply reports whether the party may appear on purchase-side documents.
func (k PartyKind) CanSupply() bool { return k == PartySupplier || k == PartyBoth }

// CanBuy reports whether the party may appear on sale-side documents.
func (k PartyKind) CanBuy() bool { return k == PartyCustomer || k == PartyBoth }

// Party is a supplier, customer or both. NTN and STRN are the national tax
// and sales-tax registration numbers printed on invoices.
type Party struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Name      string    `json:"name"`
	Kind      PartyKind `json:"kind"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	NTN       string    `json:"ntn,omitempty"`
	STRN      string    `json:"strn,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is a stocked item. CurrentQty is denormalized from the movement
// ledger and is never written by this package.
type Product struct {
	ID           int64           `json:"id"`
	CompanyID    int64           `json:"company_id"`
	CategoryID   int64           `json:"category_id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Barcode      string          `json:"barcode,omitempty"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	CurrentQty   decimal.Decimal `json:"current_qty"`
	MinimumQty   decimal.Decimal `json:"minimum_qty"`
	GSTRate      decimal.Decimal `json:"gst_rate"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// LowStock reports whether the cached balance sits at or under the threshold.
func (p Product) LowStock() bool {
	return p.MinimumQty.IsPositive() && p.CurrentQty.LessThanOrEqual(p.MinimumQty)
}

// ListFilter narrows entity listings.
type ListFilter struct {
	Search     string
	IsActive   *bool
	CategoryID int64
	HSCodeID   int64
	Kind       PartyKind
	LowStock   bool
	Page       int
	PerPage    int
}
