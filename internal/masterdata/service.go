package masterdata

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/afco-erp/afco-erp/internal/shared"
)

// Repository abstracts masterdata persistence.
type Repository interface {
	CreateHSCode(ctx context.Context, h *HSCode) error
	UpdateHSCode(ctx context.Context, h HSCode) error
	DeleteHSCode(ctx context.Context, companyID, id int64) error
	GetHSCode(ctx context.Context, companyID, id int64) (HSCode, error)
	ListHSCodes(ctx context.Context, companyID int64, filter ListFilter) ([]HSCode, int, error)
	CountCategoriesByHSCode(ctx context.Context, hscodeID int64) (int, error)

	CreateCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c Category) error
	DeleteCategory(ctx context.Context, companyID, id int64) error
	GetCategory(ctx context.Context, companyID, id int64) (Category, error)
	ListCategories(ctx context.Context, companyID int64, filter ListFilter) ([]Category, int, error)
	CountProductsByCategory(ctx context.Context, categoryID int64) (int, error)

	CreateParty(ctx context.Context, p *Party) error
	UpdateParty(ctx context.Context, p Party) error
	DeleteParty(ctx context.Context, companyID, id int64) error
	GetParty(ctx context.Context, companyID, id int64) (Party, error)
	ListParties(ctx context.Context, companyID int64, filter ListFilter) ([]Party, int, error)
	CountMovementsByParty(ctx context.Context, partyID int64) (int, error)

	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, companyID, id int64) error
	GetProduct(ctx context.Context, companyID, id int64) (Product, error)
	ListProducts(ctx context.Context, companyID int64, filter ListFilter) ([]Product, int, error)
	CountMovementsByProduct(ctx context.Context, productID int64) (int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service carries masterdata business rules: uniqueness lives in the database,
// referential delete protection and field validation live here.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// ---- HS codes ----

func (s *Service) CreateHSCode(ctx context.Context, scope shared.Scope, h HSCode) (HSCode, error) {
	if err := validateHSCode(h); err != nil {
		return HSCode{}, err
	}
	h.CompanyID = scope.CompanyID
	h.IsActive = true
	if err := s.repo.CreateHSCode(ctx, &h); err != nil {
		return HSCode{}, shared.MapStorageError(err)
	}
	s.auditRecord(ctx, scope, "masterdata:hscode:create", "hscode", h.ID)
	return h, nil
}

func (s *Service) UpdateHSCode(ctx context.Context, scope shared.Scope, h HSCode) error {
	if err := validateHSCode(h); err != nil {
		return err
	}
	current, err := s.repo.GetHSCode(ctx, scope.CompanyID, h.ID)
	if err != nil {
		return err
	}
	h.CompanyID = current.CompanyID
	if err := s.repo.UpdateHSCode(ctx, h); err != nil {
		return shared.MapStorageError(err)
	}
	s.auditRecord(ctx, scope, "masterdata:hscode:update", "hscode", h.ID)
	return nil
}

// DeleteHSCode refuses while categories still reference the code.
func (s *Service) DeleteHSCode(ctx context.Context, scope shared.Scope, id int64) error {
	if _, err := s.repo.GetHSCode(ctx, scope.CompanyID, id); err != nil {
		return err
	}
	n, err := s.repo.CountCategoriesByHSCode(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d categories use this HS code", shared.ErrHasDependents, n)
	}
	if err := s.repo.DeleteHSCode(ctx, scope.CompanyID, id); err != nil {
		return err
	}
	s.auditRecord(ctx, scope, "masterdata:hscode:delete", "hscode", id)
	return nil
}

func (s *Service) GetHSCode(ctx context.Context, scope shared.Scope, id int64) (HSCode, error) {
	return s.repo.GetHSCode(ctx, scope.CompanyID, id)
}

func (s *Service) ListHSCodes(ctx context.Context, scope shared.Scope, filter ListFilter) ([]HSCode, int, error) {
	return s.repo.ListHSCodes(ctx, scope.CompanyID, filter)
}

// ---- Categories ----

func (s *Service) CreateCategory(ctx context.Context, scope shared.Scope, c Category) (Category, error) {
	if err := validateCategory(c); err != nil {
		return Category{}, err
	}
	if _, err := s.repo.GetHSCode(ctx, scope.CompanyID, c.HSCodeID); err != nil {
		return Category{}, shared.InvalidArgumentf("hscode_id", "unknown HS code %d", c.HSCodeID)
	}
	c.CompanyID = scope.CompanyID
	c.IsActive = true
	if err := s.repo.CreateCategory(ctx, &c); err != nil {
		return Category{}, shared.MapStorageError(err)
	}
	s.auditRecord(ctx, scope, "masterdata:category:create", "category", c.ID)
	return c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, scope shared.Scope, c Category) error {
	if err := validateCategory(c); err != nil {
		return err
	}
	current, err := s.repo.GetCategory(ctx, scope.CompanyID, c.ID)
	if err != nil {
		return err
	}
	if c.HSCodeID != current.HSCodeID {
		if _, err := s.repo.GetHSCode(ctx, scope.CompanyID, c.HSCodeID); err != nil {
			return shared.InvalidArgumentf("hscode_id", "unknown HS code %d", c.HSCodeID)
		}
	}
	c.CompanyID = current.CompanyID
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return shared.MapStorageError(err)
	}
	s.auditRecord(ctx, scope, "masterdata:category:update", "category", c.ID)
	return nil
}

// DeleteCategory refuses while products still reference the category.
func (s *Service) DeleteCategory(ctx context.Context, scope shared.Scope, id int64) error {
	if _, err := s.repo.GetCategory(ctx, scope.CompanyID, id); err != nil {
		return err
	}
	n, err := s.repo.CountProductsByCategory(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d products use this category", shared.ErrHasDependents, n)
	}
	if err := s.repo.DeleteCategory(ctx, scope.CompanyID, id); err != nil {
		return err
	}
	s.auditRecord(ctx, scope, "masterdata:category:delete", "category", id)
	return nil
}

func (s *Service) GetCategory(ctx context.Context, scope shared.Scope, id int64) (Category, error) {
	return s.repo.GetCategory(ctx, scope.CompanyID, id)
}

func (s *Service) ListCategories(ctx context.Context, scope shared.Scope, filter ListFilter) ([]Category, int, error) {
	return s.repo.ListCategories(ctx, scope.CompanyID, filter)
}

// ---- Parties ----

func (s *Service) CreateParty(ctx context.Context, scope shared.Scope, p Party) (Party, error) {
	if err := validateParty(p); err != nil {
		return Party{}, err
	}
	p.CompanyID = scope.CompanyID
	p.IsActive = true
	if err := s.repo.CreateParty(ctx, &p); err != nil {
		return Party{}, shared.MapStorageError(err)
	}
	s.auditRecord(ctx, scope, "masterdata:party:create", "party", p.ID)
	return p, nil
}

func (s *Service) UpdateParty(ctx context.Context, scope shared.Scope, p Party) error {
	if err := validateParty(p); err != nil {
		return err
	}
	current, err := s.repo.GetParty(ctx, scope.CompanyID, p.ID)
	if err != nil {
		return err
	}
	p.CompanyID = current.CompanyID
	if err := s.repo.UpdateParty(ctx, p); err != nil {
		return shared.MapStorageError(err)
	}
	s.auditRecord(ctx, scope, "masterdata:party:update", "party", p.ID)
	return nil
}

// DeleteParty refuses while ledger movements still reference the party.
func (s *Service) DeleteParty(ctx context.Context, scope shared.Scope, id int64) error {
	if _, err := s.repo.GetParty(ctx, scope.CompanyID, id); err != nil {
		return err
	}
	n, err := s.repo.CountMovementsByParty(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d movements reference this party", shared.ErrHasDependents, n)
	}
	if err := s.repo.DeleteParty(ctx, scope.CompanyID, id); err != nil {
		return err
	}
	s.auditRecord(ctx, scope, "masterdata:party:delete", "party", id)
	return nil
}

func (s *Service) GetParty(ctx context.Context, scope shared.Scope, id int64) (Party, error) {
	return s.repo.GetParty(ctx, scope.CompanyID, id)
}

func (s *Service) ListParties(ctx context.Context, scope shared.Scope, filter ListFilter) ([]Party, int, error) {
	return s.repo.ListParties(ctx, scope.CompanyID, filter)
}

// ---- Products ----

func (s *Service) CreateProduct(ctx context.Context, scope shared.Scope, p Product) (Product, error) {
	if err := validateProduct(p); err != nil {
		return Product{}, err
	}
	if _, err := s.repo.GetCategory(ctx, scope.CompanyID, p.CategoryID); err != nil {
		return Product{}, shared.InvalidArgumentf("category_id", "unknown category %d", p.CategoryID)
	}
	p.CompanyID = scope.CompanyID
	p.IsActive = true
	if err := s.repo.CreateProduct(ctx, &p); err != nil {
		return Product{}, shared.MapStorageError(err)
	}
	s.auditRecord(ctx, scope, "masterdata:product:create", "product", p.ID)
	return p, nil
}

// UpdateProduct rewrites the descriptive fields. The cached quantity is owned
// by the ledger and survives every update untouched.
func (s *Service) UpdateProduct(ctx context.Context, scope shared.Scope, p Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	current, err := s.repo.GetProduct(ctx, scope.CompanyID, p.ID)
	if err != nil {
		return err
	}
	if p.CategoryID != current.CategoryID {
		if _, err := s.repo.GetCategory(ctx, scope.CompanyID, p.CategoryID); err != nil {
			return shared.InvalidArgumentf("category_id", "unknown category %d", p.CategoryID)
		}
	}
	p.CompanyID = current.CompanyID
	p.CurrentQty = current.CurrentQty
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return shared.MapStorageError(err)
	}
	s.auditRecord(ctx, scope, "masterdata:product:update", "product", p.ID)
	return nil
}

// DeleteProduct refuses while movements exist; history must stay re-derivable.
func (s *Service) DeleteProduct(ctx context.Context, scope shared.Scope, id int64) error {
	if _, err := s.repo.GetProduct(ctx, scope.CompanyID, id); err != nil {
		return err
	}
	n, err := s.repo.CountMovementsByProduct(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d movements reference this product", shared.ErrHasDependents, n)
	}
	if err := s.repo.DeleteProduct(ctx, scope.CompanyID, id); err != nil {
		return err
	}
	s.auditRecord(ctx, scope, "masterdata:product:delete", "product", id)
	return nil
}

func (s *Service) GetProduct(ctx context.Context, scope shared.Scope, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, scope.CompanyID, id)
}

func (s *Service) ListProducts(ctx context.Context, scope shared.Scope, filter ListFilter) ([]Product, int, error) {
	return s.repo.ListProducts(ctx, scope.CompanyID, filter)
}

// ListLowStock returns active products whose cached balance is at or under
// their minimum quantity.
func (s *Service) ListLowStock(ctx context.Context, scope shared.Scope, filter ListFilter) ([]Product, int, error) {
	filter.LowStock = true
	active := true
	filter.IsActive = &active
	return s.repo.ListProducts(ctx, scope.CompanyID, filter)
}

func (s *Service) auditRecord(ctx context.Context, scope shared.Scope, action, entity string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: scope.CompanyID,
		Action:    action,
		Entity:    entity,
		EntityID:  fmt.Sprintf("%d", id),
	})
}

// ---- validation ----

func validateHSCode(h HSCode) error {
	digits := 0
	for _, r := range h.Code {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
		default:
			return shared.InvalidArgumentf("code", "HS code may only contain digits and dots")
		}
	}
	if digits < 6 {
		return shared.InvalidArgumentf("code", "HS code needs at least 6 digits")
	}
	return nil
}

func validateCategory(c Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return shared.InvalidArgumentf("name", "required")
	}
	if c.HSCodeID <= 0 {
		return shared.InvalidArgumentf("hscode_id", "required")
	}
	return nil
}

func validateParty(p Party) error {
	if strings.TrimSpace(p.Name) == "" {
		return shared.InvalidArgumentf("name", "required")
	}
	if !p.Kind.Valid() {
		return shared.InvalidArgumentf("kind", "must be supplier, customer or both")
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			return shared.InvalidArgumentf("email", "not a valid address")
		}
	}
	return nil
}

func validateProduct(p Product) error {
	if strings.TrimSpace(p.Code) == "" {
		return shared.InvalidArgumentf("code", "required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return shared.InvalidArgumentf("name", "required")
	}
	if p.CategoryID <= 0 {
		return shared.InvalidArgumentf("category_id", "required")
	}
	if p.CostPrice.IsNegative() || p.SellingPrice.IsNegative() {
		return shared.InvalidArgumentf("price", "must not be negative")
	}
	if p.MinimumQty.IsNegative() {
		return shared.InvalidArgumentf("minimum_qty", "must not be negative")
	}
	if p.GSTRate.IsNegative() || p.GSTRate.GreaterThan(decimalHundred) {
		return shared.InvalidArgumentf("gst_rate", "must be between 0 and 100")
	}
	return nil
}
