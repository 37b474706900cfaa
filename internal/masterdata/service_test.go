package masterdata

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/afco-erp/afco-erp/internal/shared"
)

type memoryRepo struct {
	nextID     int64
	hscodes    map[int64]HSCode
	categories map[int64]Category
	parties    map[int64]Party
	products   map[int64]Product

	movementsByProduct map[int64]int
	movementsByParty   map[int64]int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		hscodes:            map[int64]HSCode{},
		categories:         map[int64]Category{},
		parties:            map[int64]Party{},
		products:           map[int64]Product{},
		movementsByProduct: map[int64]int{},
		movementsByParty:   map[int64]int{},
	}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) CreateHSCode(ctx context.Context, h *HSCode) error {
	h.ID = r.id()
	r.hscodes[h.ID] = *h
	return nil
}

func (r *memoryRepo) UpdateHSCode(ctx context.Context, h HSCode) error {
	r.hscodes[h.ID] = h
	return nil
}

func (r *memoryRepo) DeleteHSCode(ctx context.Context, companyID, id int64) error {
	delete(r.hscodes, id)
	return nil
}

func (r *memoryRepo) GetHSCode(ctx context.Context, companyID, id int64) (HSCode, error) {
	h, ok := r.hscodes[id]
	if !ok || h.CompanyID != companyID {
		return HSCode{}, shared.ErrNotFound
	}
	return h, nil
}

func (r *memoryRepo) ListHSCodes(ctx context.Context, companyID int64, filter ListFilter) ([]HSCode, int, error) {
	var out []HSCode
	for _, h := range r.hscodes {
		if h.CompanyID == companyID {
			out = append(out, h)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) CountCategoriesByHSCode(ctx context.Context, hscodeID int64) (int, error) {
	n := 0
	for _, c := range r.categories {
		if c.HSCodeID == hscodeID {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) CreateCategory(ctx context.Context, c *Category) error {
	c.ID = r.id()
	r.categories[c.ID] = *c
	return nil
}

func (r *memoryRepo) UpdateCategory(ctx context.Context, c Category) error {
	r.categories[c.ID] = c
	return nil
}

func (r *memoryRepo) DeleteCategory(ctx context.Context, companyID, id int64) error {
	delete(r.categories, id)
	return nil
}

func (r *memoryRepo) GetCategory(ctx context.Context, companyID, id int64) (Category, error) {
	c, ok := r.categories[id]
	if !ok || c.CompanyID != companyID {
		return Category{}, shared.ErrNotFound
	}
	return c, nil
}

func (r *memoryRepo) ListCategories(ctx context.Context, companyID int64, filter ListFilter) ([]Category, int, error) {
	var out []Category
	for _, c := range r.categories {
		if c.CompanyID == companyID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) CountProductsByCategory(ctx context.Context, categoryID int64) (int, error) {
	n := 0
	for _, p := range r.products {
		if p.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) CreateParty(ctx context.Context, p *Party) error {
	p.ID = r.id()
	r.parties[p.ID] = *p
	return nil
}

func (r *memoryRepo) UpdateParty(ctx context.Context, p Party) error {
	r.parties[p.ID] = p
	return nil
}

func (r *memoryRepo) DeleteParty(ctx context.Context, companyID, id int64) error {
	delete(r.parties, id)
	return nil
}

func (r *memoryRepo) GetParty(ctx context.Context, companyID, id int64) (Party, error) {
	p, ok := r.parties[id]
	if !ok || p.CompanyID != companyID {
		return Party{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListParties(ctx context.Context, companyID int64, filter ListFilter) ([]Party, int, error) {
	var out []Party
	for _, p := range r.parties {
		if p.CompanyID != companyID {
			continue
		}
		if filter.Kind != "" && !(p.Kind == filter.Kind || p.Kind == PartyBoth) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) CountMovementsByParty(ctx context.Context, partyID int64) (int, error) {
	return r.movementsByParty[partyID], nil
}

func (r *memoryRepo) CreateProduct(ctx context.Context, p *Product) error {
	p.ID = r.id()
	p.CurrentQty = decimal.Zero
	r.products[p.ID] = *p
	return nil
}

func (r *memoryRepo) UpdateProduct(ctx context.Context, p Product) error {
	stored := r.products[p.ID]
	p.CurrentQty = stored.CurrentQty
	r.products[p.ID] = p
	return nil
}

func (r *memoryRepo) DeleteProduct(ctx context.Context, companyID, id int64) error {
	delete(r.products, id)
	return nil
}

func (r *memoryRepo) GetProduct(ctx context.Context, companyID, id int64) (Product, error) {
	p, ok := r.products[id]
	if !ok || p.CompanyID != companyID {
		return Product{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) ListProducts(ctx context.Context, companyID int64, filter ListFilter) ([]Product, int, error) {
	var out []Product
	for _, p := range r.products {
		if p.CompanyID != companyID {
			continue
		}
		if filter.LowStock && !p.LowStock() {
			continue
		}
		if filter.IsActive != nil && p.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) CountMovementsByProduct(ctx context.Context, productID int64) (int, error) {
	return r.movementsByProduct[productID], nil
}

var testScope = shared.Scope{CompanyID: 1, FiscalYearID: 1}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seed(t *testing.T, svc *Service) (HSCode, Category, Product) {
	t.Helper()
	ctx := context.Background()
	hs, err := svc.CreateHSCode(ctx, testScope, HSCode{Code: "2523.2900", Description: "Portland cement"})
	require.NoError(t, err)
	cat, err := svc.CreateCategory(ctx, testScope, Category{HSCodeID: hs.ID, Name: "Cement"})
	require.NoError(t, err)
	product, err := svc.CreateProduct(ctx, testScope, Product{
		CategoryID: cat.ID, Code: "CEM-001", Name: "Grey cement 50kg", Unit: "bag",
		CostPrice: dec("1150"), SellingPrice: dec("1250"), MinimumQty: dec("100"), GSTRate: dec("17"),
	})
	require.NoError(t, err)
	return hs, cat, product
}

func TestHSCodeValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.CreateHSCode(ctx, testScope, HSCode{Code: "25.23"})
	require.ErrorIs(t, err, shared.ErrInvalidArgument, "too few digits")

	_, err = svc.CreateHSCode(ctx, testScope, HSCode{Code: "2523-29"})
	require.ErrorIs(t, err, shared.ErrInvalidArgument, "illegal separator")

	hs, err := svc.CreateHSCode(ctx, testScope, HSCode{Code: "2523.2900"})
	require.NoError(t, err)
	require.True(t, hs.IsActive)
}

func TestDeleteRefusedWithDependents(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	hs, cat, product := seed(t, svc)

	require.ErrorIs(t, svc.DeleteHSCode(ctx, testScope, hs.ID), shared.ErrHasDependents)
	require.ErrorIs(t, svc.DeleteCategory(ctx, testScope, cat.ID), shared.ErrHasDependents)

	repo.movementsByProduct[product.ID] = 3
	require.ErrorIs(t, svc.DeleteProduct(ctx, testScope, product.ID), shared.ErrHasDependents)

	// Bottom-up removal works once nothing references the rows.
	repo.movementsByProduct[product.ID] = 0
	require.NoError(t, svc.DeleteProduct(ctx, testScope, product.ID))
	require.NoError(t, svc.DeleteCategory(ctx, testScope, cat.ID))
	require.NoError(t, svc.DeleteHSCode(ctx, testScope, hs.ID))
}

func TestPartyDeleteRefusedWithMovements(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	party, err := svc.CreateParty(ctx, testScope, Party{Name: "Al Madina Traders", Kind: PartySupplier})
	require.NoError(t, err)

	repo.movementsByParty[party.ID] = 1
	require.ErrorIs(t, svc.DeleteParty(ctx, testScope, party.ID), shared.ErrHasDependents)
}

func TestUpdateProductPreservesCurrentQty(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	_, _, product := seed(t, svc)

	// The ledger moved stock in the meantime.
	stored := repo.products[product.ID]
	stored.CurrentQty = dec("480")
	repo.products[product.ID] = stored

	product.Name = "Grey cement 50kg (new bag)"
	product.CurrentQty = dec("999999") // must be ignored
	require.NoError(t, svc.UpdateProduct(ctx, testScope, product))

	after, err := svc.GetProduct(ctx, testScope, product.ID)
	require.NoError(t, err)
	require.Equal(t, "Grey cement 50kg (new bag)", after.Name)
	require.True(t, after.CurrentQty.Equal(dec("480")))
}

func TestListLowStock(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	_, _, product := seed(t, svc)

	items, total, err := svc.ListLowStock(ctx, testScope, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, total, "zero stock with minimum 100 is low")
	require.Equal(t, product.ID, items[0].ID)

	stored := repo.products[product.ID]
	stored.CurrentQty = dec("500")
	repo.products[product.ID] = stored

	_, total, err = svc.ListLowStock(ctx, testScope, ListFilter{})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestPartyKindValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	_, err := svc.CreateParty(context.Background(), testScope, Party{Name: "X", Kind: "reseller"})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)

	_, err = svc.CreateParty(context.Background(), testScope, Party{Name: "X", Kind: PartyBoth, Email: "not-an-email"})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestScopeIsolation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()
	hs, _, product := seed(t, svc)

	other := shared.Scope{CompanyID: 2, FiscalYearID: 9}
	_, err := svc.GetHSCode(ctx, other, hs.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = svc.GetProduct(ctx, other, product.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
