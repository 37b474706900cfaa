package stockdocs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/afco-erp/afco-erp/internal/ledger"
	"github.com/afco-erp/afco-erp/internal/masterdata"
	"github.com/afco-erp/afco-erp/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetFiscalYear(ctx context.Context, id int64) (shared.FiscalYear, error)
	GetInvoice(ctx context.Context, scope shared.Scope, id int64) (StockInvoice, error)
	ListInvoices(ctx context.Context, scope shared.Scope, filter ListFilter) ([]StockInvoice, int, error)
	SetLineMovement(ctx context.Context, lineID, movementID int64) error
	DeleteInvoice(ctx context.Context, scope shared.Scope, id int64) error
}

// TxRepository exposes transactional operations used during finalization.
type TxRepository interface {
	// NextSequence increments and returns the per (company, fiscal year, kind)
	// document counter.
	NextSequence(ctx context.Context, scope shared.Scope, kind ledger.Kind) (int, error)
	InsertInvoice(ctx context.Context, inv *StockInvoice) error
	InsertLine(ctx context.Context, line *InvoiceLine) error
}

// LedgerPort is the slice of the movement ledger the adapter drives.
type LedgerPort interface {
	RecordMovement(ctx context.Context, scope shared.Scope, input ledger.RecordInput) (ledger.Movement, error)
	DeleteByDocument(ctx context.Context, scope shared.Scope, documentID int64) error
}

// ProductPort resolves products for line validation and GST defaults.
type ProductPort interface {
	GetProduct(ctx context.Context, scope shared.Scope, id int64) (masterdata.Product, error)
}

// PartyPort resolves counterparties for side validation.
type PartyPort interface {
	GetParty(ctx context.Context, scope shared.Scope, id int64) (masterdata.Party, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the transaction source adapter: it turns one finalized stock
// invoice into one ledger movement per line. Every derived total is computed
// before the first write, so an invalid line anywhere fails the whole
// document with nothing persisted.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	ledger   LedgerPort
	products ProductPort
	parties  PartyPort
	audit    AuditPort
}

// NewService constructs stockdocs service.
func NewService(logger *slog.Logger, repo RepositoryPort, led LedgerPort, products ProductPort, parties PartyPort, audit AuditPort) *Service {
	return &Service{logger: logger, repo: repo, ledger: led, products: products, parties: parties, audit: audit}
}

// preparedLine pairs the caller's line with its derived totals.
type preparedLine struct {
	input  LineInput
	totals LineTotals
}

// FinalizeDocument validates the whole document, persists the header and
// lines, then records one movement per line in line order. Movement recording
// failures roll the document back so the ledger and the document store never
// disagree.
func (s *Service) FinalizeDocument(ctx context.Context, scope shared.Scope, input FinalizeInput) (StockInvoice, error) {
	if !scope.Valid() {
		return StockInvoice{}, shared.InvalidArgumentf("scope", "company and fiscal year required")
	}
	if !input.Kind.Valid() {
		return StockInvoice{}, shared.InvalidArgumentf("kind", "unknown document kind %q", input.Kind)
	}
	if len(input.Lines) == 0 {
		return StockInvoice{}, shared.InvalidArgumentf("lines", "at least one line required")
	}

	fy, err := s.repo.GetFiscalYear(ctx, scope.FiscalYearID)
	if err != nil {
		return StockInvoice{}, err
	}
	if fy.CompanyID != scope.CompanyID {
		return StockInvoice{}, shared.ErrScopeMismatch
	}
	if fy.Status == shared.FiscalYearStatusClosed {
		return StockInvoice{}, shared.InvalidArgumentf("fiscal_year", "%s is closed for posting", fy.Label)
	}
	if err := fy.ValidateDocumentDate(input.Date); err != nil {
		return StockInvoice{}, err
	}
	if err := s.validateParty(ctx, scope, input); err != nil {
		return StockInvoice{}, err
	}

	prepared, subtotal, totalGST, err := s.prepareLines(ctx, scope, input)
	if err != nil {
		return StockInvoice{}, err
	}

	inv := StockInvoice{
		Scope:       scope,
		Kind:        input.Kind,
		Date:        input.Date,
		PartyID:     input.PartyID,
		ReferenceNo: input.ReferenceNo,
		Notes:       input.Notes,
		Subtotal:    subtotal,
		TotalGST:    totalGST,
		GrandTotal:  subtotal.Add(totalGST),
		CreatedBy:   input.ActorID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, scope, input.Kind)
		if err != nil {
			return err
		}
		inv.Number = FormatNumber(input.Kind, fy, seq)
		if err := tx.InsertInvoice(ctx, &inv); err != nil {
			return err
		}
		for i, p := range prepared {
			line := InvoiceLine{
				InvoiceID:    inv.ID,
				LineNo:       i + 1,
				ProductID:    p.input.ProductID,
				Description:  p.input.Description,
				Quantity:     p.input.Quantity,
				UnitPrice:    p.input.UnitPrice,
				GSTRate:      p.totals.GSTRate,
				AmountExGST:  p.totals.AmountExGST,
				GSTAmount:    p.totals.GSTAmount,
				AmountIncGST: p.totals.AmountIncGST,
			}
			if err := tx.InsertLine(ctx, &line); err != nil {
				return err
			}
			inv.Lines = append(inv.Lines, line)
		}
		return nil
	})
	if err != nil {
		return StockInvoice{}, shared.MapStorageError(err)
	}

	// Movements are recorded outside the document transaction because the
	// ledger owns its own per-product serialization. Validation already
	// passed for every line, so a failure here is infrastructure trouble:
	// compensate by removing the half-finished document.
	for i := range inv.Lines {
		line := &inv.Lines[i]
		movement, err := s.ledger.RecordMovement(ctx, scope, ledger.RecordInput{
			ProductID:      line.ProductID,
			Kind:           input.Kind,
			Date:           input.Date,
			SourceRef:      inv.Number,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			GSTRate:        line.GSTRate,
			PartyID:        input.PartyID,
			DocumentID:     inv.ID,
			DocumentLineID: line.ID,
			ActorID:        input.ActorID,
		})
		if err != nil {
			s.rollbackDocument(ctx, scope, inv.ID)
			return StockInvoice{}, fmt.Errorf("record line %d: %w", line.LineNo, err)
		}
		line.MovementID = movement.ID
		if err := s.repo.SetLineMovement(ctx, line.ID, movement.ID); err != nil {
			s.rollbackDocument(ctx, scope, inv.ID)
			return StockInvoice{}, err
		}
	}

	s.auditRecord(ctx, scope, input.ActorID, "stockdocs:finalize", inv)
	return inv, nil
}

// DeleteDocument removes the invoice's movements through the ledger cascade,
// then the invoice and its lines.
func (s *Service) DeleteDocument(ctx context.Context, scope shared.Scope, id int64) error {
	inv, err := s.repo.GetInvoice(ctx, scope, id)
	if err != nil {
		return err
	}
	if err := s.ledger.DeleteByDocument(ctx, scope, inv.ID); err != nil {
		return err
	}
	if err := s.repo.DeleteInvoice(ctx, scope, inv.ID); err != nil {
		return err
	}
	s.auditRecord(ctx, scope, 0, "stockdocs:delete", inv)
	return nil
}

// GetDocument returns one invoice with its lines.
func (s *Service) GetDocument(ctx context.Context, scope shared.Scope, id int64) (StockInvoice, error) {
	return s.repo.GetInvoice(ctx, scope, id)
}

// ListDocuments returns invoice headers matching the filter.
func (s *Service) ListDocuments(ctx context.Context, scope shared.Scope, filter ListFilter) ([]StockInvoice, int, error) {
	if !scope.Valid() {
		return nil, 0, shared.InvalidArgumentf("scope", "company and fiscal year required")
	}
	return s.repo.ListInvoices(ctx, scope, filter)
}

// prepareLines validates every line and computes its totals. No writes happen
// here: any invalid line aborts the document before the first insert.
func (s *Service) prepareLines(ctx context.Context, scope shared.Scope, input FinalizeInput) ([]preparedLine, decimal.Decimal, decimal.Decimal, error) {
	prepared := make([]preparedLine, 0, len(input.Lines))
	subtotal, totalGST := decimal.Zero, decimal.Zero

	for i, line := range input.Lines {
		field := func(name string) string { return fmt.Sprintf("lines[%d].%s", i, name) }
		if line.ProductID <= 0 {
			return nil, decimal.Zero, decimal.Zero, shared.InvalidArgumentf(field("product_id"), "required")
		}
		product, err := s.products.GetProduct(ctx, scope, line.ProductID)
		if err != nil {
			return nil, decimal.Zero, decimal.Zero, shared.InvalidArgumentf(field("product_id"), "unknown product %d", line.ProductID)
		}
		if input.Kind == ledger.KindAdjustment {
			if line.Quantity.IsNegative() {
				return nil, decimal.Zero, decimal.Zero, shared.InvalidArgumentf(field("quantity"), "adjustment target must not be negative")
			}
		} else if !line.Quantity.IsPositive() {
			return nil, decimal.Zero, decimal.Zero, shared.InvalidArgumentf(field("quantity"), "must be greater than zero")
		}
		if line.UnitPrice.IsNegative() {
			return nil, decimal.Zero, decimal.Zero, shared.InvalidArgumentf(field("unit_price"), "must not be negative")
		}

		// Neither rate nor amount supplied: the product's default rate applies.
		rate := line.GSTRate
		if !rate.Valid && !line.GSTAmount.Valid && product.GSTRate.IsPositive() {
			rate = decimal.NullDecimal{Decimal: product.GSTRate, Valid: true}
		}
		totals, err := ComputeLineTotals(line.Quantity, line.UnitPrice, rate, line.GSTAmount)
		if err != nil {
			return nil, decimal.Zero, decimal.Zero, fmt.Errorf("line %d: %w", i+1, err)
		}

		prepared = append(prepared, preparedLine{input: line, totals: totals})
		subtotal = subtotal.Add(totals.AmountExGST)
		totalGST = totalGST.Add(totals.GSTAmount)
	}
	return prepared, subtotal, totalGST, nil
}

func (s *Service) validateParty(ctx context.Context, scope shared.Scope, input FinalizeInput) error {
	if input.PartyID == 0 {
		return nil
	}
	party, err := s.parties.GetParty(ctx, scope, input.PartyID)
	if err != nil {
		return shared.InvalidArgumentf("party_id", "unknown party %d", input.PartyID)
	}
	switch input.Kind {
	case ledger.KindPurchase, ledger.KindImport, ledger.KindPurchaseReturn:
		if !party.Kind.CanSupply() {
			return shared.InvalidArgumentf("party_id", "%s is not a supplier", party.Name)
		}
	case ledger.KindSale, ledger.KindExport, ledger.KindSaleReturn:
		if !party.Kind.CanBuy() {
			return shared.InvalidArgumentf("party_id", "%s is not a customer", party.Name)
		}
	}
	return nil
}

func (s *Service) rollbackDocument(ctx context.Context, scope shared.Scope, id int64) {
	if err := s.ledger.DeleteByDocument(ctx, scope, id); err != nil {
		s.logger.Error("rollback movements", slog.Int64("invoice_id", id), slog.Any("error", err))
	}
	if err := s.repo.DeleteInvoice(ctx, scope, id); err != nil {
		s.logger.Error("rollback invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
	}
}

func (s *Service) auditRecord(ctx context.Context, scope shared.Scope, actorID int64, action string, inv StockInvoice) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: scope.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "stock_invoice",
		EntityID:  fmt.Sprintf("%d", inv.ID),
		Meta: map[string]any{
			"number": inv.Number,
			"kind":   string(inv.Kind),
			"lines":  len(inv.Lines),
		},
	})
}
