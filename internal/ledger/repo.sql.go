package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/afco-erp/afco-erp/internal/platform/db"
	"github.com/afco-erp/afco-erp/internal/shared"
)

// Repository persists the movement ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const movementColumns = `id, company_id, fiscal_year_id, product_id, kind, movement_date, source_ref, party_id,
document_id, document_line_id, qty_in, qty_out, target_qty, unit_price, gst_rate,
unit_cost, avg_cost, value_in, value_out, balance_qty, balance_value, gst_in, gst_out,
created_by, created_at`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// GetMovement loads one movement outside any transaction.
func (r *Repository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	return scanMovement(r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id=$1`, id))
}

// ListByProduct returns a product's history ordered by (movement_date, id).
func (r *Repository) ListByProduct(ctx context.Context, scope shared.Scope, productID int64, from, to time.Time, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE company_id=$1 AND product_id=$2
AND movement_date BETWEEN COALESCE($3, '-infinity'::date) AND COALESCE($4, 'infinity'::date)
ORDER BY movement_date ASC, id ASC
LIMIT $5`, scope.CompanyID, productID, nullDate(from), nullDate(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMovements(rows)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	var p Product
	err := r.tx.QueryRow(ctx, `SELECT id, company_id, code, gst_rate, cost_price, current_qty FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.CompanyID, &p.Code, &p.GSTRate, &p.CostPrice, &p.CurrentQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *txRepository) SeedBefore(ctx context.Context, productID int64, date time.Time, beforeID int64) (CostState, error) {
	var state CostState
	err := r.tx.QueryRow(ctx, `SELECT balance_qty, balance_value, avg_cost FROM stock_movements
WHERE product_id=$1 AND (movement_date < $2 OR (movement_date = $2 AND id < $3))
ORDER BY movement_date DESC, id DESC
LIMIT 1`, productID, date, beforeID).Scan(&state.Qty, &state.Value, &state.AvgCost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CostState{Qty: decimal.Zero, Value: decimal.Zero, AvgCost: decimal.Zero}, nil
		}
		return CostState{}, err
	}
	return state, nil
}

func (r *txRepository) ListAfter(ctx context.Context, productID int64, date time.Time, afterID int64, limit int) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE product_id=$1 AND (movement_date > $2 OR (movement_date = $2 AND id > $3))
ORDER BY movement_date ASC, id ASC
LIMIT $4`, productID, date, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMovements(rows)
}

func (r *txRepository) InsertMovement(ctx context.Context, m *Movement) error {
	return r.tx.QueryRow(ctx, `INSERT INTO stock_movements
(company_id, fiscal_year_id, product_id, kind, movement_date, source_ref, party_id, document_id, document_line_id,
 qty_in, qty_out, target_qty, unit_price, gst_rate,
 unit_cost, avg_cost, value_in, value_out, balance_qty, balance_value, gst_in, gst_out, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,NOW())
RETURNING id, created_at`,
		m.Scope.CompanyID, m.Scope.FiscalYearID, m.ProductID, string(m.Kind), m.Date, m.SourceRef,
		nullInt(m.PartyID), nullInt(m.DocumentID), nullInt(m.DocumentLineID),
		m.QtyIn, m.QtyOut, m.TargetQty, m.UnitPrice, m.GSTRate,
		m.UnitCost, m.AvgCost, m.ValueIn, m.ValueOut, m.BalanceQty, m.BalanceValue, m.GSTIn, m.GSTOut,
		nullInt(m.CreatedBy)).Scan(&m.ID, &m.CreatedAt)
}

func (r *txRepository) UpdateDerived(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_movements SET
qty_in=$2, qty_out=$3, unit_cost=$4, avg_cost=$5, value_in=$6, value_out=$7,
balance_qty=$8, balance_value=$9, gst_in=$10, gst_out=$11
WHERE id=$1`,
		m.ID, m.QtyIn, m.QtyOut, m.UnitCost, m.AvgCost, m.ValueIn, m.ValueOut,
		m.BalanceQty, m.BalanceValue, m.GSTIn, m.GSTOut)
	return err
}

func (r *txRepository) GetMovement(ctx context.Context, id int64) (Movement, error) {
	return scanMovement(r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) DeleteMovement(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM stock_movements WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txRepository) ListByDocument(ctx context.Context, documentID int64) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE document_id=$1 ORDER BY movement_date ASC, id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMovements(rows)
}

func (r *txRepository) DeleteByDocument(ctx context.Context, documentID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM stock_movements WHERE document_id=$1`, documentID)
	return err
}

func (r *txRepository) LastMovement(ctx context.Context, productID int64) (Movement, bool, error) {
	m, err := scanMovement(r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE product_id=$1 ORDER BY movement_date DESC, id DESC LIMIT 1`, productID))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Movement{}, false, nil
		}
		return Movement{}, false, err
	}
	return m, true, nil
}

func (r *txRepository) UpdateProductBalance(ctx context.Context, productID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET current_qty=$2, updated_at=NOW() WHERE id=$1`, productID, qty)
	return err
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var partyID, documentID, documentLineID, createdBy *int64
	err := row.Scan(&m.ID, &m.Scope.CompanyID, &m.Scope.FiscalYearID, &m.ProductID, &m.Kind, &m.Date,
		&m.SourceRef, &partyID, &documentID, &documentLineID,
		&m.QtyIn, &m.QtyOut, &m.TargetQty, &m.UnitPrice, &m.GSTRate,
		&m.UnitCost, &m.AvgCost, &m.ValueIn, &m.ValueOut, &m.BalanceQty, &m.BalanceValue, &m.GSTIn, &m.GSTOut,
		&createdBy, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, shared.ErrNotFound
		}
		return Movement{}, err
	}
	m.PartyID = derefInt(partyID)
	m.DocumentID = derefInt(documentID)
	m.DocumentLineID = derefInt(documentLineID)
	m.CreatedBy = derefInt(createdBy)
	return m, nil
}

func collectMovements(rows pgx.Rows) ([]Movement, error) {
	movements := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func nullDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
