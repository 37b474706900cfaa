package stockdocs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/afco-erp/afco-erp/internal/ledger"
	"github.com/afco-erp/afco-erp/internal/masterdata"
	"github.com/afco-erp/afco-erp/internal/shared"
)

type fakeRepo struct {
	fiscalYears map[int64]shared.FiscalYear
	invoices    map[int64]*StockInvoice
	sequences   map[string]int
	nextID      int64
}

func newFakeRepo(fy shared.FiscalYear) *fakeRepo {
	return &fakeRepo{
		fiscalYears: map[int64]shared.FiscalYear{fy.ID: fy},
		invoices:    map[int64]*StockInvoice{},
		sequences:   map[string]int{},
	}
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := &fakeTx{repo: r}
	if err := fn(ctx, staged); err != nil {
		// Discard everything staged in this transaction.
		for _, inv := range staged.inserted {
			delete(r.invoices, inv.ID)
		}
		return err
	}
	return nil
}

func (r *fakeRepo) GetFiscalYear(ctx context.Context, id int64) (shared.FiscalYear, error) {
	fy, ok := r.fiscalYears[id]
	if !ok {
		return shared.FiscalYear{}, shared.ErrNotFound
	}
	return fy, nil
}

func (r *fakeRepo) GetInvoice(ctx context.Context, scope shared.Scope, id int64) (StockInvoice, error) {
	inv, ok := r.invoices[id]
	if !ok || inv.Scope.CompanyID != scope.CompanyID {
		return StockInvoice{}, shared.ErrNotFound
	}
	return *inv, nil
}

func (r *fakeRepo) ListInvoices(ctx context.Context, scope shared.Scope, filter ListFilter) ([]StockInvoice, int, error) {
	var out []StockInvoice
	for _, inv := range r.invoices {
		if inv.Scope == scope && (filter.Kind == "" || inv.Kind == filter.Kind) {
			out = append(out, *inv)
		}
	}
	return out, len(out), nil
}

func (r *fakeRepo) SetLineMovement(ctx context.Context, lineID, movementID int64) error {
	for _, inv := range r.invoices {
		for i := range inv.Lines {
			if inv.Lines[i].ID == lineID {
				inv.Lines[i].MovementID = movementID
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func (r *fakeRepo) DeleteInvoice(ctx context.Context, scope shared.Scope, id int64) error {
	if _, ok := r.invoices[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.invoices, id)
	return nil
}

type fakeTx struct {
	repo     *fakeRepo
	inserted []*StockInvoice
}

func (t *fakeTx) NextSequence(ctx context.Context, scope shared.Scope, kind ledger.Kind) (int, error) {
	key := fmt.Sprintf("%d/%d/%s", scope.CompanyID, scope.FiscalYearID, kind)
	t.repo.sequences[key]++
	return t.repo.sequences[key], nil
}

func (t *fakeTx) InsertInvoice(ctx context.Context, inv *StockInvoice) error {
	t.repo.nextID++
	inv.ID = t.repo.nextID
	inv.CreatedAt = time.Now()
	stored := *inv
	t.repo.invoices[inv.ID] = &stored
	t.inserted = append(t.inserted, &stored)
	return nil
}

func (t *fakeTx) InsertLine(ctx context.Context, line *InvoiceLine) error {
	t.repo.nextID++
	line.ID = t.repo.nextID
	inv := t.repo.invoices[line.InvoiceID]
	inv.Lines = append(inv.Lines, *line)
	return nil
}

type fakeLedger struct {
	nextID    int64
	movements []ledger.RecordInput
	deleted   []int64
	failAfter int // fail the n-th RecordMovement call, 0 disables
}

func (l *fakeLedger) RecordMovement(ctx context.Context, scope shared.Scope, input ledger.RecordInput) (ledger.Movement, error) {
	if l.failAfter > 0 && len(l.movements)+1 >= l.failAfter {
		return ledger.Movement{}, errors.New("storage down")
	}
	l.movements = append(l.movements, input)
	l.nextID++
	return ledger.Movement{ID: l.nextID, ProductID: input.ProductID, Kind: input.Kind}, nil
}

func (l *fakeLedger) DeleteByDocument(ctx context.Context, scope shared.Scope, documentID int64) error {
	l.deleted = append(l.deleted, documentID)
	kept := l.movements[:0]
	for _, m := range l.movements {
		if m.DocumentID != documentID {
			kept = append(kept, m)
		}
	}
	l.movements = kept
	return nil
}

type fakeProducts struct {
	products map[int64]masterdata.Product
}

func (p *fakeProducts) GetProduct(ctx context.Context, scope shared.Scope, id int64) (masterdata.Product, error) {
	product, ok := p.products[id]
	if !ok || product.CompanyID != scope.CompanyID {
		return masterdata.Product{}, shared.ErrNotFound
	}
	return product, nil
}

type fakeParties struct {
	parties map[int64]masterdata.Party
}

func (p *fakeParties) GetParty(ctx context.Context, scope shared.Scope, id int64) (masterdata.Party, error) {
	party, ok := p.parties[id]
	if !ok || party.CompanyID != scope.CompanyID {
		return masterdata.Party{}, shared.ErrNotFound
	}
	return party, nil
}

var testScope = shared.Scope{CompanyID: 1, FiscalYearID: 1}

func testFiscalYear() shared.FiscalYear {
	return shared.FiscalYear{
		ID: 1, CompanyID: 1, Label: "FY 2024-25",
		StartDate: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC),
		Status:    shared.FiscalYearStatusOpen,
	}
}

func testFixture() (*Service, *fakeRepo, *fakeLedger) {
	repo := newFakeRepo(testFiscalYear())
	led := &fakeLedger{}
	products := &fakeProducts{products: map[int64]masterdata.Product{
		1: {ID: 1, CompanyID: 1, Code: "CEM-001", GSTRate: dec("17")},
		2: {ID: 2, CompanyID: 1, Code: "STL-001", GSTRate: dec("18")},
	}}
	parties := &fakeParties{parties: map[int64]masterdata.Party{
		5: {ID: 5, CompanyID: 1, Name: "Al Madina Traders", Kind: masterdata.PartySupplier},
		6: {ID: 6, CompanyID: 1, Name: "City Builders", Kind: masterdata.PartyCustomer},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(logger, repo, led, products, parties, nil)
	return svc, repo, led
}

func docDate() time.Time { return time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC) }

func TestFinalizeDocumentRecordsMovementPerLine(t *testing.T) {
	svc, _, led := testFixture()

	inv, err := svc.FinalizeDocument(context.Background(), testScope, FinalizeInput{
		Kind:    ledger.KindPurchase,
		Date:    docDate(),
		PartyID: 5,
		Lines: []LineInput{
			{ProductID: 1, Quantity: dec("10"), UnitPrice: dec("100"), GSTRate: nd("17")},
			{ProductID: 2, Quantity: dec("5"), UnitPrice: dec("200"), GSTAmount: nd("180")},
		},
	})
	require.NoError(t, err)

	require.Equal(t, "PUR-2024-0001", inv.Number)
	require.True(t, inv.Subtotal.Equal(dec("2000")))
	require.True(t, inv.TotalGST.Equal(dec("350")))
	require.True(t, inv.GrandTotal.Equal(dec("2350")))

	require.Len(t, led.movements, 2)
	require.Equal(t, int64(1), led.movements[0].ProductID)
	require.Equal(t, int64(2), led.movements[1].ProductID)
	require.Equal(t, inv.Number, led.movements[0].SourceRef)
	require.Equal(t, inv.ID, led.movements[0].DocumentID)
	require.True(t, led.movements[1].GSTRate.Equal(dec("18")), "back-solved rate flows to the ledger")

	stored, err := svc.GetDocument(context.Background(), testScope, inv.ID)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 2)
	require.NotZero(t, stored.Lines[0].MovementID)
}

func TestFinalizeDocumentAtomicOnInvalidLine(t *testing.T) {
	svc, repo, led := testFixture()

	_, err := svc.FinalizeDocument(context.Background(), testScope, FinalizeInput{
		Kind: ledger.KindPurchase,
		Date: docDate(),
		Lines: []LineInput{
			{ProductID: 1, Quantity: dec("10"), UnitPrice: dec("100")},
			{ProductID: 2, Quantity: dec("-5"), UnitPrice: dec("200")},
			{ProductID: 1, Quantity: dec("3"), UnitPrice: dec("100")},
		},
	})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
	require.Contains(t, err.Error(), "lines[1].quantity")

	require.Empty(t, led.movements, "no movement may exist for any line")
	require.Empty(t, repo.invoices, "no document may be stored")
}

func TestFinalizeDocumentNumberingPerKind(t *testing.T) {
	svc, _, _ := testFixture()
	ctx := context.Background()

	line := []LineInput{{ProductID: 1, Quantity: dec("1"), UnitPrice: dec("10")}}
	first, err := svc.FinalizeDocument(ctx, testScope, FinalizeInput{Kind: ledger.KindPurchase, Date: docDate(), PartyID: 5, Lines: line})
	require.NoError(t, err)
	second, err := svc.FinalizeDocument(ctx, testScope, FinalizeInput{Kind: ledger.KindPurchase, Date: docDate(), PartyID: 5, Lines: line})
	require.NoError(t, err)
	sale, err := svc.FinalizeDocument(ctx, testScope, FinalizeInput{Kind: ledger.KindSale, Date: docDate(), PartyID: 6, Lines: line})
	require.NoError(t, err)

	require.Equal(t, "PUR-2024-0001", first.Number)
	require.Equal(t, "PUR-2024-0002", second.Number)
	require.Equal(t, "SAL-2024-0001", sale.Number, "each kind counts independently")
}

func TestFinalizeDocumentRejectsDateOutsideFiscalYear(t *testing.T) {
	svc, _, led := testFixture()

	_, err := svc.FinalizeDocument(context.Background(), testScope, FinalizeInput{
		Kind:  ledger.KindPurchase,
		Date:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{{ProductID: 1, Quantity: dec("1"), UnitPrice: dec("10")}},
	})
	require.ErrorIs(t, err, shared.ErrDateOutsideFiscalYear)
	require.Empty(t, led.movements)
}

func TestFinalizeDocumentPartySideChecked(t *testing.T) {
	svc, _, _ := testFixture()

	// City Builders is a customer; it cannot supply a purchase.
	_, err := svc.FinalizeDocument(context.Background(), testScope, FinalizeInput{
		Kind:    ledger.KindPurchase,
		Date:    docDate(),
		PartyID: 6,
		Lines:   []LineInput{{ProductID: 1, Quantity: dec("1"), UnitPrice: dec("10")}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestFinalizeDocumentDefaultsGSTRateFromProduct(t *testing.T) {
	svc, _, led := testFixture()

	inv, err := svc.FinalizeDocument(context.Background(), testScope, FinalizeInput{
		Kind:  ledger.KindPurchase,
		Date:  docDate(),
		Lines: []LineInput{{ProductID: 1, Quantity: dec("10"), UnitPrice: dec("100")}},
	})
	require.NoError(t, err)
	require.True(t, inv.TotalGST.Equal(dec("170")), "product GST rate 17 applies when the line stays silent")
	require.True(t, led.movements[0].GSTRate.Equal(dec("17")))
}

func TestFinalizeDocumentCompensatesWhenLedgerFails(t *testing.T) {
	svc, repo, led := testFixture()
	led.failAfter = 2

	_, err := svc.FinalizeDocument(context.Background(), testScope, FinalizeInput{
		Kind: ledger.KindPurchase,
		Date: docDate(),
		Lines: []LineInput{
			{ProductID: 1, Quantity: dec("10"), UnitPrice: dec("100")},
			{ProductID: 2, Quantity: dec("5"), UnitPrice: dec("200")},
		},
	})
	require.Error(t, err)
	require.Empty(t, led.movements, "the recorded first movement must be rolled back")
	require.Empty(t, repo.invoices)
}

func TestDeleteDocumentCascadesThroughLedger(t *testing.T) {
	svc, repo, led := testFixture()

	inv, err := svc.FinalizeDocument(context.Background(), testScope, FinalizeInput{
		Kind:  ledger.KindPurchase,
		Date:  docDate(),
		Lines: []LineInput{{ProductID: 1, Quantity: dec("10"), UnitPrice: dec("100")}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteDocument(context.Background(), testScope, inv.ID))
	require.Equal(t, []int64{inv.ID}, led.deleted)
	require.Empty(t, repo.invoices)

	err = svc.DeleteDocument(context.Background(), testScope, inv.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
