package reports

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afco-erp/afco-erp/internal/shared"
)

// Repository runs the report queries against PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ListMovementRows(ctx context.Context, scope shared.Scope, filter MovementFilter) ([]MovementRow, error) {
	where := []string{"m.company_id=$1", "m.fiscal_year_id=$2"}
	args := []any{scope.CompanyID, scope.FiscalYearID}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		where = append(where, fmt.Sprintf("m.product_id=$%d", len(args)))
	}
	if filter.CategoryID > 0 {
		args = append(args, filter.CategoryID)
		where = append(where, fmt.Sprintf("p.category_id=$%d", len(args)))
	}
	if filter.HSCodeID > 0 {
		args = append(args, filter.HSCodeID)
		where = append(where, fmt.Sprintf("c.hscode_id=$%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("m.kind=$%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("m.movement_date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("m.movement_date <= $%d", len(args)))
	}

	rows, err := r.pool.Query(ctx, `SELECT m.id, m.movement_date, m.kind, m.source_ref,
p.id, p.code, p.name, c.id, c.name, h.id, h.code,
m.qty_in, m.qty_out, m.unit_price, m.unit_cost, m.avg_cost,
m.value_in, m.value_out, m.balance_qty, m.balance_value, m.gst_in, m.gst_out
FROM stock_movements m
JOIN products p ON p.id = m.product_id
JOIN categories c ON c.id = p.category_id
JOIN hs_codes h ON h.id = c.hscode_id
WHERE `+strings.Join(where, " AND ")+`
ORDER BY m.movement_date ASC, m.id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []MovementRow{}
	for rows.Next() {
		var row MovementRow
		if err := rows.Scan(&row.MovementID, &row.Date, &row.Kind, &row.SourceRef,
			&row.ProductID, &row.ProductCode, &row.ProductName,
			&row.CategoryID, &row.CategoryName, &row.HSCodeID, &row.HSCode,
			&row.QtyIn, &row.QtyOut, &row.UnitPrice, &row.UnitCost, &row.AvgCost,
			&row.ValueIn, &row.ValueOut, &row.BalanceQty, &row.BalanceValue,
			&row.GSTIn, &row.GSTOut); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *Repository) ListValuationRows(ctx context.Context, scope shared.Scope, filter MovementFilter) ([]ValuationRow, error) {
	where := []string{"p.company_id=$1", "p.is_active"}
	args := []any{scope.CompanyID}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		where = append(where, fmt.Sprintf("p.id=$%d", len(args)))
	}
	if filter.CategoryID > 0 {
		args = append(args, filter.CategoryID)
		where = append(where, fmt.Sprintf("p.category_id=$%d", len(args)))
	}
	if filter.HSCodeID > 0 {
		args = append(args, filter.HSCodeID)
		where = append(where, fmt.Sprintf("c.hscode_id=$%d", len(args)))
	}

	// Products without movements fall back to the static cost price.
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.code, p.name, c.id, c.name, h.id, h.code,
p.current_qty, COALESCE(last.avg_cost, p.cost_price), last.avg_cost IS NULL
FROM products p
JOIN categories c ON c.id = p.category_id
JOIN hs_codes h ON h.id = c.hscode_id
LEFT JOIN LATERAL (
	SELECT avg_cost FROM stock_movements
	WHERE product_id = p.id
	ORDER BY movement_date DESC, id DESC
	LIMIT 1
) last ON true
WHERE `+strings.Join(where, " AND ")+`
ORDER BY p.code`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ValuationRow{}
	for rows.Next() {
		var row ValuationRow
		if err := rows.Scan(&row.ProductID, &row.ProductCode, &row.ProductName,
			&row.CategoryID, &row.CategoryName, &row.HSCodeID, &row.HSCode,
			&row.CurrentQty, &row.AvgCost, &row.CostPriceUsed); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
