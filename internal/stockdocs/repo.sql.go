package stockdocs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afco-erp/afco-erp/internal/ledger"
	"github.com/afco-erp/afco-erp/internal/platform/db"
	"github.com/afco-erp/afco-erp/internal/shared"
)

// Repository persists stock invoices in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *Repository) GetFiscalYear(ctx context.Context, id int64) (shared.FiscalYear, error) {
	var fy shared.FiscalYear
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, label, start_date, end_date, status
FROM fiscal_years WHERE id=$1`, id).
		Scan(&fy.ID, &fy.CompanyID, &fy.Label, &fy.StartDate, &fy.EndDate, &fy.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.FiscalYear{}, shared.ErrNotFound
		}
		return shared.FiscalYear{}, err
	}
	return fy, nil
}

const invoiceColumns = `id, company_id, fiscal_year_id, kind, number, doc_date, party_id, reference_no, notes,
subtotal, total_gst, grand_total, created_by, created_at`

func (r *Repository) GetInvoice(ctx context.Context, scope shared.Scope, id int64) (StockInvoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+`
FROM stock_invoices WHERE company_id=$1 AND id=$2`, scope.CompanyID, id))
	if err != nil {
		return StockInvoice{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, line_no, product_id, description,
quantity, unit_price, gst_rate, amount_ex_gst, gst_amount, amount_inc_gst, COALESCE(movement_id, 0)
FROM stock_invoice_lines WHERE invoice_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return StockInvoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.LineNo, &line.ProductID, &line.Description,
			&line.Quantity, &line.UnitPrice, &line.GSTRate, &line.AmountExGST, &line.GSTAmount,
			&line.AmountIncGST, &line.MovementID); err != nil {
			return StockInvoice{}, err
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, rows.Err()
}

func (r *Repository) ListInvoices(ctx context.Context, scope shared.Scope, filter ListFilter) ([]StockInvoice, int, error) {
	where := []string{"company_id=$1", "fiscal_year_id=$2"}
	args := []any{scope.CompanyID, scope.FiscalYearID}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.PartyID > 0 {
		args = append(args, filter.PartyID)
		where = append(where, fmt.Sprintf("party_id=$%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("doc_date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("doc_date <= $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_invoices WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM stock_invoices WHERE `+cond+
		fmt.Sprintf(` ORDER BY doc_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []StockInvoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

func (r *Repository) SetLineMovement(ctx context.Context, lineID, movementID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE stock_invoice_lines SET movement_id=$2 WHERE id=$1`, lineID, movementID)
	return err
}

func (r *Repository) DeleteInvoice(ctx context.Context, scope shared.Scope, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM stock_invoice_lines WHERE invoice_id=$1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM stock_invoices WHERE company_id=$1 AND id=$2`, scope.CompanyID, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) NextSequence(ctx context.Context, scope shared.Scope, kind ledger.Kind) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `INSERT INTO document_sequences (company_id, fiscal_year_id, kind, last_no)
VALUES ($1,$2,$3,1)
ON CONFLICT (company_id, fiscal_year_id, kind)
DO UPDATE SET last_no = document_sequences.last_no + 1
RETURNING last_no`, scope.CompanyID, scope.FiscalYearID, string(kind)).Scan(&seq)
	return seq, err
}

func (r *txRepository) InsertInvoice(ctx context.Context, inv *StockInvoice) error {
	return r.tx.QueryRow(ctx, `INSERT INTO stock_invoices
(company_id, fiscal_year_id, kind, number, doc_date, party_id, reference_no, notes, subtotal, total_gst, grand_total, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW())
RETURNING id, created_at`,
		inv.Scope.CompanyID, inv.Scope.FiscalYearID, string(inv.Kind), inv.Number, inv.Date,
		nullID(inv.PartyID), inv.ReferenceNo, inv.Notes, inv.Subtotal, inv.TotalGST, inv.GrandTotal,
		nullID(inv.CreatedBy)).Scan(&inv.ID, &inv.CreatedAt)
}

func (r *txRepository) InsertLine(ctx context.Context, line *InvoiceLine) error {
	return r.tx.QueryRow(ctx, `INSERT INTO stock_invoice_lines
(invoice_id, line_no, product_id, description, quantity, unit_price, gst_rate, amount_ex_gst, gst_amount, amount_inc_gst)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id`,
		line.InvoiceID, line.LineNo, line.ProductID, line.Description, line.Quantity, line.UnitPrice,
		line.GSTRate, line.AmountExGST, line.GSTAmount, line.AmountIncGST).Scan(&line.ID)
}

func scanInvoice(row pgx.Row) (StockInvoice, error) {
	var inv StockInvoice
	var partyID, createdBy *int64
	err := row.Scan(&inv.ID, &inv.Scope.CompanyID, &inv.Scope.FiscalYearID, &inv.Kind, &inv.Number,
		&inv.Date, &partyID, &inv.ReferenceNo, &inv.Notes,
		&inv.Subtotal, &inv.TotalGST, &inv.GrandTotal, &createdBy, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockInvoice{}, shared.ErrNotFound
		}
		return StockInvoice{}, err
	}
	if partyID != nil {
		inv.PartyID = *partyID
	}
	if createdBy != nil {
		inv.CreatedBy = *createdBy
	}
	return inv, nil
}

func nullID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
