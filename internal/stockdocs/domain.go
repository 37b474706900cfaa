package stockdocs

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/afco-erp/afco-erp/internal/ledger"
	"github.com/afco-erp/afco-erp/internal/shared"
)

// StockInvoice is a finalized multi-line stock document. One movement is
// recorded per line; deleting the invoice removes them all in one cascade.
type StockInvoice struct {
	ID          int64        `json:"id"`
	Scope       shared.Scope `json:"-"`
	Kind        ledger.Kind  `json:"kind"`
	Number      string       `json:"number"`
	Date        time.Time    `json:"date"`
	PartyID     int64        `json:"party_id,omitempty"`
	ReferenceNo string       `json:"reference_no,omitempty"`
	Notes       string       `json:"notes,omitempty"`

	Subtotal   decimal.Decimal `json:"subtotal"`
	TotalGST   decimal.Decimal `json:"total_gst"`
	GrandTotal decimal.Decimal `json:"grand_total"`

	Lines []InvoiceLine `json:"lines"`

	CreatedBy int64     `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// InvoiceLine is one product line of a stock invoice. AmountExGST, GSTAmount
// and AmountIncGST are derived during finalization and stored for printing.
type InvoiceLine struct {
	ID          int64  `json:"id"`
	InvoiceID   int64  `json:"invoice_id"`
	LineNo      int    `json:"line_no"`
	ProductID   int64  `json:"product_id"`
	Description string `json:"description,omitempty"`

	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	GSTRate      decimal.Decimal `json:"gst_rate"`
	AmountExGST  decimal.Decimal `json:"amount_ex_gst"`
	GSTAmount    decimal.Decimal `json:"gst_amount"`
	AmountIncGST decimal.Decimal `json:"amount_inc_gst"`

	MovementID int64 `json:"movement_id,omitempty"`
}

// LineInput is one caller-supplied line. Exactly one of GSTRate/GSTAmount is
// needed; when both arrive the rate wins and the amount is recomputed.
type LineInput struct {
	ProductID   int64               `json:"product_id"`
	Description string              `json:"description"`
	Quantity    decimal.Decimal     `json:"quantity"`
	UnitPrice   decimal.Decimal     `json:"unit_price"`
	GSTRate     decimal.NullDecimal `json:"gst_rate"`
	GSTAmount   decimal.NullDecimal `json:"gst_amount"`
}

// FinalizeInput carries a complete document to finalize.
type FinalizeInput struct {
	Kind        ledger.Kind `json:"kind"`
	Date        time.Time   `json:"-"`
	PartyID     int64       `json:"party_id"`
	ReferenceNo string      `json:"reference_no"`
	Notes       string      `json:"notes"`
	Lines       []LineInput `json:"lines"`
	ActorID     int64       `json:"-"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Kind    ledger.Kind
	PartyID int64
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}
