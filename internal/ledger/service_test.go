package ledger

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/afco-erp/afco-erp/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	nextID    int64
	products  map[int64]*Product
	movements map[int64]*Movement
}

func newMemoryRepo(products ...Product) *memoryRepo {
	repo := &memoryRepo{products: map[int64]*Product{}, movements: map[int64]*Movement{}}
	for i := range products {
		p := products[i]
		repo.products[p.ID] = &p
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetMovement(ctx context.Context, id int64) (Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.movements[id]
	if !ok {
		return Movement{}, shared.ErrNotFound
	}
	return *m, nil
}

func (r *memoryRepo) ListByProduct(ctx context.Context, scope shared.Scope, productID int64, from, to time.Time, limit int) ([]Movement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Movement
	for _, m := range r.movements {
		if m.ProductID != productID || m.Scope.CompanyID != scope.CompanyID {
			continue
		}
		if !from.IsZero() && m.Date.Before(from) {
			continue
		}
		if !to.IsZero() && m.Date.After(to) {
			continue
		}
		out = append(out, *m)
	}
	sortMovements(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func before(aDate time.Time, aID int64, bDate time.Time, bID int64) bool {
	if !aDate.Equal(bDate) {
		return aDate.Before(bDate)
	}
	return aID < bID
}

func sortMovements(ms []Movement) {
	sort.Slice(ms, func(i, j int) bool {
		return before(ms[i].Date, ms[i].ID, ms[j].Date, ms[j].ID)
	})
}

func (t *memoryTx) GetProduct(ctx context.Context, productID int64) (Product, error) {
	p, ok := t.repo.products[productID]
	if !ok {
		return Product{}, shared.ErrNotFound
	}
	return *p, nil
}

func (t *memoryTx) SeedBefore(ctx context.Context, productID int64, date time.Time, beforeID int64) (CostState, error) {
	var last *Movement
	for _, m := range t.repo.movements {
		if m.ProductID != productID || !before(m.Date, m.ID, date, beforeID) {
			continue
		}
		if last == nil || before(last.Date, last.ID, m.Date, m.ID) {
			last = m
		}
	}
	if last == nil {
		return CostState{Qty: decimal.Zero, Value: decimal.Zero, AvgCost: decimal.Zero}, nil
	}
	return CostState{Qty: last.BalanceQty, Value: last.BalanceValue, AvgCost: last.AvgCost}, nil
}

func (t *memoryTx) ListAfter(ctx context.Context, productID int64, date time.Time, afterID int64, limit int) ([]Movement, error) {
	var out []Movement
	for _, m := range t.repo.movements {
		if m.ProductID == productID && before(date, afterID, m.Date, m.ID) {
			out = append(out, *m)
		}
	}
	sortMovements(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memoryTx) InsertMovement(ctx context.Context, m *Movement) error {
	t.repo.nextID++
	m.ID = t.repo.nextID
	m.CreatedAt = time.Now()
	stored := *m
	t.repo.movements[m.ID] = &stored
	return nil
}

func (t *memoryTx) UpdateDerived(ctx context.Context, m Movement) error {
	stored, ok := t.repo.movements[m.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.QtyIn = m.QtyIn
	stored.QtyOut = m.QtyOut
	stored.UnitCost = m.UnitCost
	stored.AvgCost = m.AvgCost
	stored.ValueIn = m.ValueIn
	stored.ValueOut = m.ValueOut
	stored.BalanceQty = m.BalanceQty
	stored.BalanceValue = m.BalanceValue
	stored.GSTIn = m.GSTIn
	stored.GSTOut = m.GSTOut
	return nil
}

func (t *memoryTx) GetMovement(ctx context.Context, id int64) (Movement, error) {
	m, ok := t.repo.movements[id]
	if !ok {
		return Movement{}, shared.ErrNotFound
	}
	return *m, nil
}

func (t *memoryTx) DeleteMovement(ctx context.Context, id int64) error {
	if _, ok := t.repo.movements[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.repo.movements, id)
	return nil
}

func (t *memoryTx) ListByDocument(ctx context.Context, documentID int64) ([]Movement, error) {
	var out []Movement
	for _, m := range t.repo.movements {
		if m.DocumentID == documentID {
			out = append(out, *m)
		}
	}
	sortMovements(out)
	return out, nil
}

func (t *memoryTx) DeleteByDocument(ctx context.Context, documentID int64) error {
	for id, m := range t.repo.movements {
		if m.DocumentID == documentID {
			delete(t.repo.movements, id)
		}
	}
	return nil
}

func (t *memoryTx) LastMovement(ctx context.Context, productID int64) (Movement, bool, error) {
	var last *Movement
	for _, m := range t.repo.movements {
		if m.ProductID != productID {
			continue
		}
		if last == nil || before(last.Date, last.ID, m.Date, m.ID) {
			last = m
		}
	}
	if last == nil {
		return Movement{}, false, nil
	}
	return *last, true, nil
}

func (t *memoryTx) UpdateProductBalance(ctx context.Context, productID int64, qty decimal.Decimal) error {
	p, ok := t.repo.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.CurrentQty = qty
	return nil
}

var testScope = shared.Scope{CompanyID: 1, FiscalYearID: 1}

func day(d int) time.Time {
	return time.Date(2024, time.April, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(repo *memoryRepo, cfg ServiceConfig) *Service {
	return NewService(repo, nil, nil, cfg)
}

func record(t *testing.T, svc *Service, input RecordInput) Movement {
	t.Helper()
	m, err := svc.RecordMovement(context.Background(), testScope, input)
	require.NoError(t, err)
	return m
}

func TestRecordMovementRunningBalance(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, CompanyID: 1, Code: "CEM-001"})
	svc := newTestService(repo, ServiceConfig{})

	record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("100"), UnitPrice: dec("10")})
	record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(2), Quantity: dec("50"), UnitPrice: dec("16")})
	sale := record(t, svc, RecordInput{ProductID: 1, Kind: KindSale, Date: day(3), Quantity: dec("60"), UnitPrice: dec("20")})

	require.True(t, sale.AvgCost.Equal(dec("12")))
	require.True(t, sale.ValueOut.Equal(dec("720")))
	require.True(t, sale.BalanceQty.Equal(dec("90")))
	require.True(t, sale.BalanceValue.Equal(dec("1080")))

	history, err := svc.ListByProduct(context.Background(), testScope, 1, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	prev := CostState{}
	for _, m := range history {
		require.True(t, m.BalanceQty.Equal(prev.Qty.Add(m.QtyIn).Sub(m.QtyOut)),
			"balance of movement %d breaks the chain", m.ID)
		prev = CostState{Qty: m.BalanceQty, Value: m.BalanceValue, AvgCost: m.AvgCost}
	}

	require.True(t, repo.products[1].CurrentQty.Equal(dec("90")))
}

func TestRecordMovementBackdatedInsertRewritesLaterMovements(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, CompanyID: 1})
	svc := newTestService(repo, ServiceConfig{})

	record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(10), Quantity: dec("100"), UnitPrice: dec("10")})
	sale := record(t, svc, RecordInput{ProductID: 1, Kind: KindSale, Date: day(20), Quantity: dec("50"), UnitPrice: dec("30")})
	require.True(t, sale.ValueOut.Equal(dec("500")))

	// A forgotten cheap delivery on day 5 changes the average the sale consumed.
	record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(5), Quantity: dec("100"), UnitPrice: dec("4")})

	rewritten, err := svc.GetMovement(context.Background(), testScope, sale.ID)
	require.NoError(t, err)
	require.True(t, rewritten.AvgCost.Equal(dec("7")), "new avg %s", rewritten.AvgCost)
	require.True(t, rewritten.ValueOut.Equal(dec("350")))
	require.True(t, rewritten.BalanceQty.Equal(dec("150")))
	require.True(t, repo.products[1].CurrentQty.Equal(dec("150")))
}

func TestRecordMovementSameDayTieBreaksOnCreationOrder(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, CompanyID: 1})
	svc := newTestService(repo, ServiceConfig{})

	first := record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("10"), UnitPrice: dec("5")})
	second := record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("10"), UnitPrice: dec("7")})

	require.Less(t, first.ID, second.ID)
	require.True(t, second.BalanceQty.Equal(dec("20")))
	require.True(t, second.BalanceValue.Equal(dec("120")))
}

func TestDeleteMovementRecomputesRemainder(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, CompanyID: 1})
	svc := newTestService(repo, ServiceConfig{})

	cheap := record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("100"), UnitPrice: dec("4")})
	record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(2), Quantity: dec("100"), UnitPrice: dec("10")})
	sale := record(t, svc, RecordInput{ProductID: 1, Kind: KindSale, Date: day(3), Quantity: dec("50"), UnitPrice: dec("30")})
	require.True(t, sale.ValueOut.Equal(dec("350")))

	require.NoError(t, svc.DeleteMovement(context.Background(), testScope, cheap.ID))

	rewritten, err := svc.GetMovement(context.Background(), testScope, sale.ID)
	require.NoError(t, err)
	require.True(t, rewritten.AvgCost.Equal(dec("10")))
	require.True(t, rewritten.ValueOut.Equal(dec("500")))
	require.True(t, rewritten.BalanceQty.Equal(dec("50")))
	require.True(t, repo.products[1].CurrentQty.Equal(dec("50")))

	_, err = svc.GetMovement(context.Background(), testScope, cheap.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAdjustmentStoresAbsoluteTarget(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, CompanyID: 1})
	svc := newTestService(repo, ServiceConfig{})

	record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("100"), UnitPrice: dec("12")})
	adj := record(t, svc, RecordInput{ProductID: 1, Kind: KindAdjustment, Date: day(2), Quantity: dec("80"), UnitPrice: dec("15")})

	require.True(t, adj.TargetQty.Valid)
	require.True(t, adj.TargetQty.Decimal.Equal(dec("80")))
	require.True(t, adj.QtyOut.Equal(dec("20")))
	require.True(t, adj.ValueOut.Equal(dec("240")), "shrinkage leaves at avg cost")
	require.True(t, adj.BalanceQty.Equal(dec("80")))
}

func TestAdjustmentTargetHoldsAfterBackdatedInsert(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, CompanyID: 1})
	svc := newTestService(repo, ServiceConfig{})

	record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(10), Quantity: dec("100"), UnitPrice: dec("10")})
	adj := record(t, svc, RecordInput{ProductID: 1, Kind: KindAdjustment, Date: day(20), Quantity: dec("80"), UnitPrice: dec("10")})
	require.True(t, adj.QtyOut.Equal(dec("20")))

	// More stock before the count: the count still pins the balance at 80,
	// so the adjustment's synthetic delta must grow.
	record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(5), Quantity: dec("30"), UnitPrice: dec("10")})

	rewritten, err := svc.GetMovement(context.Background(), testScope, adj.ID)
	require.NoError(t, err)
	require.True(t, rewritten.QtyOut.Equal(dec("50")))
	require.True(t, rewritten.BalanceQty.Equal(dec("80")))
	require.True(t, repo.products[1].CurrentQty.Equal(dec("80")))
}

func TestDeleteByDocumentRecomputesEveryProduct(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, CompanyID: 1}, Product{ID: 2, CompanyID: 1})
	svc := newTestService(repo, ServiceConfig{})

	record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("10"), UnitPrice: dec("5"), DocumentID: 77, DocumentLineID: 1})
	record(t, svc, RecordInput{ProductID: 2, Kind: KindPurchase, Date: day(1), Quantity: dec("20"), UnitPrice: dec("3"), DocumentID: 77, DocumentLineID: 2})
	keeper := record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(2), Quantity: dec("10"), UnitPrice: dec("9")})

	require.NoError(t, svc.DeleteByDocument(context.Background(), testScope, 77))

	history, err := svc.ListByProduct(context.Background(), testScope, 1, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, keeper.ID, history[0].ID)
	require.True(t, history[0].BalanceQty.Equal(dec("10")))
	require.True(t, history[0].AvgCost.Equal(dec("9")))

	require.True(t, repo.products[1].CurrentQty.Equal(dec("10")))
	require.True(t, repo.products[2].CurrentQty.IsZero())
}

func TestRecomputeFromIsIdempotent(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, CompanyID: 1})
	svc := newTestService(repo, ServiceConfig{})

	record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("100"), UnitPrice: dec("10")})
	sale := record(t, svc, RecordInput{ProductID: 1, Kind: KindSale, Date: day(2), Quantity: dec("40"), UnitPrice: dec("20")})

	// Corrupt a derived field behind the service's back.
	repo.movements[sale.ID].BalanceQty = dec("999")

	updated, err := svc.RecomputeFrom(context.Background(), testScope, 1, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, updated)

	updated, err = svc.RecomputeFrom(context.Background(), testScope, 1, time.Time{})
	require.NoError(t, err)
	require.Zero(t, updated, "second pass must find nothing to rewrite")
}

func TestCascadeCeiling(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, CompanyID: 1})
	svc := newTestService(repo, ServiceConfig{RecomputeLimit: 2})

	for d := 10; d < 13; d++ {
		record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(d), Quantity: dec("1"), UnitPrice: dec("1")})
	}

	_, err := svc.RecordMovement(context.Background(), testScope, RecordInput{
		ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("1"), UnitPrice: dec("1"),
	})
	require.ErrorIs(t, err, shared.ErrRecomputeTooLarge)
}

func TestRecordMovementScopeMismatch(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, CompanyID: 2})
	svc := newTestService(repo, ServiceConfig{})

	_, err := svc.RecordMovement(context.Background(), testScope, RecordInput{
		ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("1"), UnitPrice: dec("1"),
	})
	require.ErrorIs(t, err, shared.ErrScopeMismatch)
}

func TestRecordMovementValidation(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, CompanyID: 1})
	svc := newTestService(repo, ServiceConfig{})

	cases := map[string]RecordInput{
		"zero quantity":       {ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("0"), UnitPrice: dec("1")},
		"negative quantity":   {ProductID: 1, Kind: KindSale, Date: day(1), Quantity: dec("-2"), UnitPrice: dec("1")},
		"negative target":     {ProductID: 1, Kind: KindAdjustment, Date: day(1), Quantity: dec("-1"), UnitPrice: dec("1")},
		"negative price":      {ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("1"), UnitPrice: dec("-1")},
		"gst over 100":        {ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("1"), UnitPrice: dec("1"), GSTRate: dec("101")},
		"unknown kind":        {ProductID: 1, Kind: Kind("teleport"), Date: day(1), Quantity: dec("1"), UnitPrice: dec("1")},
		"missing date":        {ProductID: 1, Kind: KindPurchase, Quantity: dec("1"), UnitPrice: dec("1")},
		"missing product":     {Kind: KindPurchase, Date: day(1), Quantity: dec("1"), UnitPrice: dec("1")},
	}
	for name, input := range cases {
		_, err := svc.RecordMovement(context.Background(), testScope, input)
		require.ErrorIs(t, err, shared.ErrInvalidArgument, name)
	}
}

func TestSaleReturnAndPurchaseReturnDirections(t *testing.T) {
	repo := newMemoryRepo(Product{ID: 1, CompanyID: 1})
	svc := newTestService(repo, ServiceConfig{})

	record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchase, Date: day(1), Quantity: dec("10"), UnitPrice: dec("8")})
	pr := record(t, svc, RecordInput{ProductID: 1, Kind: KindPurchaseReturn, Date: day(2), Quantity: dec("4"), UnitPrice: dec("8")})
	require.True(t, pr.QtyOut.Equal(dec("4")))
	require.True(t, pr.BalanceQty.Equal(dec("6")))

	sr := record(t, svc, RecordInput{ProductID: 1, Kind: KindSaleReturn, Date: day(3), Quantity: dec("2"), UnitPrice: dec("8")})
	require.True(t, sr.QtyIn.Equal(dec("2")))
	require.True(t, sr.BalanceQty.Equal(dec("8")))
}
