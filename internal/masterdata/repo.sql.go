package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/afco-erp/afco-erp/internal/shared"
)

// SQLRepository persists masterdata in PostgreSQL.
type SQLRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs SQLRepository.
func NewRepository(pool *pgxpool.Pool) *SQLRepository {
	return &SQLRepository{pool: pool}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func pageClause(filter ListFilter, args *[]any) string {
	page := shared.NewPagination(filter.Page, filter.PerPage, 0)
	*args = append(*args, page.PerPage, page.Offset())
	n := len(*args)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n-1, n)
}

// ---- HS codes ----

func (r *SQLRepository) CreateHSCode(ctx context.Context, h *HSCode) error {
	return r.pool.QueryRow(ctx, `INSERT INTO hs_codes (company_id, code, description, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		h.CompanyID, h.Code, h.Description, h.IsActive).Scan(&h.ID, &h.CreatedAt, &h.UpdatedAt)
}

func (r *SQLRepository) UpdateHSCode(ctx context.Context, h HSCode) error {
	_, err := r.pool.Exec(ctx, `UPDATE hs_codes SET code=$3, description=$4, is_active=$5, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, h.CompanyID, h.ID, h.Code, h.Description, h.IsActive)
	return err
}

func (r *SQLRepository) DeleteHSCode(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM hs_codes WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *SQLRepository) GetHSCode(ctx context.Context, companyID, id int64) (HSCode, error) {
	var h HSCode
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, code, description, is_active, created_at, updated_at
FROM hs_codes WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&h.ID, &h.CompanyID, &h.Code, &h.Description, &h.IsActive, &h.CreatedAt, &h.UpdatedAt)
	return h, notFound(err)
}

func (r *SQLRepository) ListHSCodes(ctx context.Context, companyID int64, filter ListFilter) ([]HSCode, int, error) {
	where := []string{"company_id=$1"}
	args := []any{companyID}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(code ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where = append(where, fmt.Sprintf("is_active=$%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM hs_codes WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, code, description, is_active, created_at, updated_at
FROM hs_codes WHERE `+cond+` ORDER BY code`+pageClause(filter, &args), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []HSCode{}
	for rows.Next() {
		var h HSCode
		if err := rows.Scan(&h.ID, &h.CompanyID, &h.Code, &h.Description, &h.IsActive, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) CountCategoriesByHSCode(ctx context.Context, hscodeID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM categories WHERE hscode_id=$1`, hscodeID).Scan(&n)
	return n, err
}

// ---- Categories ----

func (r *SQLRepository) CreateCategory(ctx context.Context, c *Category) error {
	return r.pool.QueryRow(ctx, `INSERT INTO categories (company_id, hscode_id, name, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		c.CompanyID, c.HSCodeID, c.Name, c.IsActive).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (r *SQLRepository) UpdateCategory(ctx context.Context, c Category) error {
	_, err := r.pool.Exec(ctx, `UPDATE categories SET hscode_id=$3, name=$4, is_active=$5, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, c.CompanyID, c.ID, c.HSCodeID, c.Name, c.IsActive)
	return err
}

func (r *SQLRepository) DeleteCategory(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *SQLRepository) GetCategory(ctx context.Context, companyID, id int64) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, hscode_id, name, is_active, created_at, updated_at
FROM categories WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&c.ID, &c.CompanyID, &c.HSCodeID, &c.Name, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, notFound(err)
}

func (r *SQLRepository) ListCategories(ctx context.Context, companyID int64, filter ListFilter) ([]Category, int, error) {
	where := []string{"company_id=$1"}
	args := []any{companyID}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if filter.HSCodeID > 0 {
		args = append(args, filter.HSCodeID)
		where = append(where, fmt.Sprintf("hscode_id=$%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where = append(where, fmt.Sprintf("is_active=$%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM categories WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, hscode_id, name, is_active, created_at, updated_at
FROM categories WHERE `+cond+` ORDER BY name`+pageClause(filter, &args), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.HSCodeID, &c.Name, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) CountProductsByCategory(ctx context.Context, categoryID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE category_id=$1`, categoryID).Scan(&n)
	return n, err
}

// ---- Parties ----

func (r *SQLRepository) CreateParty(ctx context.Context, p *Party) error {
	return r.pool.QueryRow(ctx, `INSERT INTO parties (company_id, name, kind, phone, email, address, ntn, strn, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		p.CompanyID, p.Name, string(p.Kind), p.Phone, p.Email, p.Address, p.NTN, p.STRN, p.IsActive).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *SQLRepository) UpdateParty(ctx context.Context, p Party) error {
	_, err := r.pool.Exec(ctx, `UPDATE parties SET name=$3, kind=$4, phone=$5, email=$6, address=$7, ntn=$8, strn=$9, is_active=$10, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, p.CompanyID, p.ID, p.Name, string(p.Kind), p.Phone, p.Email, p.Address, p.NTN, p.STRN, p.IsActive)
	return err
}

func (r *SQLRepository) DeleteParty(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM parties WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *SQLRepository) GetParty(ctx context.Context, companyID, id int64) (Party, error) {
	var p Party
	err := r.pool.QueryRow(ctx, `SELECT id, company_id, name, kind, phone, email, address, ntn, strn, is_active, created_at, updated_at
FROM parties WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&p.ID, &p.CompanyID, &p.Name, &p.Kind, &p.Phone, &p.Email, &p.Address, &p.NTN, &p.STRN, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, notFound(err)
}

func (r *SQLRepository) ListParties(ctx context.Context, companyID int64, filter ListFilter) ([]Party, int, error) {
	where := []string{"company_id=$1"}
	args := []any{companyID}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR ntn ILIKE $%d)", len(args), len(args)))
	}
	if filter.Kind != "" {
		// "both" parties satisfy either side.
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("(kind=$%d OR kind='both')", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where = append(where, fmt.Sprintf("is_active=$%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM parties WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, company_id, name, kind, phone, email, address, ntn, strn, is_active, created_at, updated_at
FROM parties WHERE `+cond+` ORDER BY name`+pageClause(filter, &args), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Party{}
	for rows.Next() {
		var p Party
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Kind, &p.Phone, &p.Email, &p.Address, &p.NTN, &p.STRN, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) CountMovementsByParty(ctx context.Context, partyID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE party_id=$1`, partyID).Scan(&n)
	return n, err
}

// ---- Products ----

const productColumns = `id, company_id, category_id, code, name, unit, barcode, cost_price, selling_price,
current_qty, minimum_qty, gst_rate, is_active, created_at, updated_at`

func (r *SQLRepository) CreateProduct(ctx context.Context, p *Product) error {
	return r.pool.QueryRow(ctx, `INSERT INTO products
(company_id, category_id, code, name, unit, barcode, cost_price, selling_price, current_qty, minimum_qty, gst_rate, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,$9,$10,$11,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		p.CompanyID, p.CategoryID, p.Code, p.Name, p.Unit, p.Barcode,
		p.CostPrice, p.SellingPrice, p.MinimumQty, p.GSTRate, p.IsActive).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// UpdateProduct never touches current_qty; the ledger owns that column.
func (r *SQLRepository) UpdateProduct(ctx context.Context, p Product) error {
	_, err := r.pool.Exec(ctx, `UPDATE products SET category_id=$3, code=$4, name=$5, unit=$6, barcode=$7,
cost_price=$8, selling_price=$9, minimum_qty=$10, gst_rate=$11, is_active=$12, updated_at=NOW()
WHERE company_id=$1 AND id=$2`,
		p.CompanyID, p.ID, p.CategoryID, p.Code, p.Name, p.Unit, p.Barcode,
		p.CostPrice, p.SellingPrice, p.MinimumQty, p.GSTRate, p.IsActive)
	return err
}

func (r *SQLRepository) DeleteProduct(ctx context.Context, companyID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *SQLRepository) GetProduct(ctx context.Context, companyID, id int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE company_id=$1 AND id=$2`, companyID, id).
		Scan(&p.ID, &p.CompanyID, &p.CategoryID, &p.Code, &p.Name, &p.Unit, &p.Barcode,
			&p.CostPrice, &p.SellingPrice, &p.CurrentQty, &p.MinimumQty, &p.GSTRate,
			&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, notFound(err)
}

func (r *SQLRepository) ListProducts(ctx context.Context, companyID int64, filter ListFilter) ([]Product, int, error) {
	where := []string{"company_id=$1"}
	args := []any{companyID}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(code ILIKE $%d OR name ILIKE $%d OR barcode ILIKE $%d)", len(args), len(args), len(args)))
	}
	if filter.CategoryID > 0 {
		args = append(args, filter.CategoryID)
		where = append(where, fmt.Sprintf("category_id=$%d", len(args)))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		where = append(where, fmt.Sprintf("is_active=$%d", len(args)))
	}
	if filter.LowStock {
		where = append(where, "minimum_qty > 0 AND current_qty <= minimum_qty")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE `+cond+` ORDER BY code`+pageClause(filter, &args), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.CategoryID, &p.Code, &p.Name, &p.Unit, &p.Barcode,
			&p.CostPrice, &p.SellingPrice, &p.CurrentQty, &p.MinimumQty, &p.GSTRate,
			&p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *SQLRepository) CountMovementsByProduct(ctx context.Context, productID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE product_id=$1`, productID).Scan(&n)
	return n, err
}
