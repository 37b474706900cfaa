package reports

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/afco-erp/afco-erp/internal/shared"
)

// RepositoryPort describes the read queries behind the reports.
type RepositoryPort interface {
	// ListMovementRows returns matching movements in (date, id) order with
	// their product classification joined in.
	ListMovementRows(ctx context.Context, scope shared.Scope, filter MovementFilter) ([]MovementRow, error)
	// ListValuationRows returns one row per active product with the last
	// movement's average cost, or cost_price_used when none exists.
	ListValuationRows(ctx context.Context, scope shared.Scope, filter MovementFilter) ([]ValuationRow, error)
}

// Service assembles the movement and valuation reports. All methods are
// read-only and never touch ledger state.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// MovementDetailed returns the ordered movement listing.
func (s *Service) MovementDetailed(ctx context.Context, scope shared.Scope, filter MovementFilter) ([]MovementRow, error) {
	if !scope.Valid() {
		return nil, shared.InvalidArgumentf("scope", "company and fiscal year required")
	}
	return s.repo.ListMovementRows(ctx, scope, filter)
}

// MovementSummary folds the detailed rows into per-group totals. The final
// balance of a group sums each member product's last balance inside the
// filtered window; flow columns are plain sums.
func (s *Service) MovementSummary(ctx context.Context, scope shared.Scope, filter MovementFilter) ([]SummaryRow, error) {
	if !scope.Valid() {
		return nil, shared.InvalidArgumentf("scope", "company and fiscal year required")
	}
	if filter.GroupBy == "" {
		filter.GroupBy = GroupByProduct
	}
	if !filter.GroupBy.Valid() {
		return nil, shared.InvalidArgumentf("group_by", "must be product, category or hscode")
	}
	rows, err := s.repo.ListMovementRows(ctx, scope, filter)
	if err != nil {
		return nil, err
	}

	type productLast struct {
		qty   decimal.Decimal
		value decimal.Decimal
	}
	groups := map[int64]*SummaryRow{}
	lastPerProduct := map[int64]map[int64]productLast{}

	for _, row := range rows {
		id, label := groupKey(filter.GroupBy, row)
		g, ok := groups[id]
		if !ok {
			g = &SummaryRow{
				GroupID: id, GroupLabel: label,
				QtyIn: decimal.Zero, QtyOut: decimal.Zero, NetQty: decimal.Zero,
				ValueIn: decimal.Zero, ValueOut: decimal.Zero, NetValue: decimal.Zero,
				GSTIn: decimal.Zero, GSTOut: decimal.Zero,
				FinalQty: decimal.Zero, FinalValue: decimal.Zero,
			}
			groups[id] = g
			lastPerProduct[id] = map[int64]productLast{}
		}
		g.Movements++
		g.QtyIn = g.QtyIn.Add(row.QtyIn)
		g.QtyOut = g.QtyOut.Add(row.QtyOut)
		g.ValueIn = g.ValueIn.Add(row.ValueIn)
		g.ValueOut = g.ValueOut.Add(row.ValueOut)
		g.GSTIn = g.GSTIn.Add(row.GSTIn)
		g.GSTOut = g.GSTOut.Add(row.GSTOut)
		// Rows arrive in chronological order, so the last write wins.
		lastPerProduct[id][row.ProductID] = productLast{qty: row.BalanceQty, value: row.BalanceValue}
	}

	out := make([]SummaryRow, 0, len(groups))
	for id, g := range groups {
		g.NetQty = g.QtyIn.Sub(g.QtyOut)
		g.NetValue = g.ValueIn.Sub(g.ValueOut)
		for _, last := range lastPerProduct[id] {
			g.FinalQty = g.FinalQty.Add(last.qty)
			g.FinalValue = g.FinalValue.Add(last.value)
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupLabel < out[j].GroupLabel })
	return out, nil
}

// Valuation answers "what is the stock worth right now". Group subtotals are
// computed concurrently; each product contributes avg cost × current quantity,
// or static cost price × quantity when it has never moved.
func (s *Service) Valuation(ctx context.Context, scope shared.Scope, filter MovementFilter) (ValuationReport, error) {
	if !scope.Valid() {
		return ValuationReport{}, shared.InvalidArgumentf("scope", "company and fiscal year required")
	}
	if filter.GroupBy == "" {
		filter.GroupBy = GroupByProduct
	}
	if !filter.GroupBy.Valid() {
		return ValuationReport{}, shared.InvalidArgumentf("group_by", "must be product, category or hscode")
	}
	rows, err := s.repo.ListValuationRows(ctx, scope, filter)
	if err != nil {
		return ValuationReport{}, err
	}

	partitions := map[int64][]ValuationRow{}
	labels := map[int64]string{}
	for _, row := range rows {
		id, label := valuationGroupKey(filter.GroupBy, row)
		partitions[id] = append(partitions[id], row)
		labels[id] = label
	}

	var mu sync.Mutex
	report := ValuationReport{GrandTotal: decimal.Zero, AsOf: time.Now().UTC()}
	g, ctx := errgroup.WithContext(ctx)
	for id, members := range partitions {
		id, members := id, members
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			group := ValuationGroup{
				GroupID:    id,
				GroupLabel: labels[id],
				Rows:       members,
				TotalQty:   decimal.Zero,
				TotalValue: decimal.Zero,
			}
			for i := range group.Rows {
				row := &group.Rows[i]
				row.StockValue = row.CurrentQty.Mul(row.AvgCost).Round(2)
				group.TotalQty = group.TotalQty.Add(row.CurrentQty)
				group.TotalValue = group.TotalValue.Add(row.StockValue)
			}
			mu.Lock()
			report.Groups = append(report.Groups, group)
			report.GrandTotal = report.GrandTotal.Add(group.TotalValue)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ValuationReport{}, err
	}
	sort.Slice(report.Groups, func(i, j int) bool { return report.Groups[i].GroupLabel < report.Groups[j].GroupLabel })
	return report, nil
}

func groupKey(by GroupBy, row MovementRow) (int64, string) {
	switch by {
	case GroupByCategory:
		return row.CategoryID, row.CategoryName
	case GroupByHSCode:
		return row.HSCodeID, row.HSCode
	default:
		return row.ProductID, row.ProductCode + " " + row.ProductName
	}
}

func valuationGroupKey(by GroupBy, row ValuationRow) (int64, string) {
	switch by {
	case GroupByCategory:
		return row.CategoryID, row.CategoryName
	case GroupByHSCode:
		return row.HSCodeID, row.HSCode
	default:
		return row.ProductID, row.ProductCode + " " + row.ProductName
	}
}
