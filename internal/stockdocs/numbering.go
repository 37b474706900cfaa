package stockdocs

import (
	"fmt"

	"github.com/afco-erp/afco-erp/internal/ledger"
	"github.com/afco-erp/afco-erp/internal/shared"
)

var kindPrefixes = map[ledger.Kind]string{
	ledger.KindPurchase:       "PUR",
	ledger.KindSale:           "SAL",
	ledger.KindExport:         "EXP",
	ledger.KindImport:         "IMP",
	ledger.KindSaleReturn:     "SR",
	ledger.KindPurchaseReturn: "PR",
	ledger.KindAdjustment:     "ADJ",
	ledger.KindOpening:        "OPN",
}

// FormatNumber renders an invoice number like PUR-2024-0001. The year comes
// from the fiscal year's start date, so a document dated January still carries
// the fiscal year it belongs to.
func FormatNumber(kind ledger.Kind, fy shared.FiscalYear, sequence int) string {
	return fmt.Sprintf("%s-%d-%04d", kindPrefixes[kind], fy.StartDate.Year(), sequence)
}
