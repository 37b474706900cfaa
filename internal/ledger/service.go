package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/afco-erp/afco-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMovement(ctx context.Context, id int64) (Movement, error)
	ListByProduct(ctx context.Context, scope shared.Scope, productID int64, from, to time.Time, limit int) ([]Movement, error)
}

// TxRepository exposes transactional operations used by the service. Movement
// positions are compared lexicographically on (date, id); id is the creation
// tie-break for equal dates.
type TxRepository interface {
	GetProduct(ctx context.Context, productID int64) (Product, error)
	// SeedBefore returns the balance state of the last movement strictly
	// before position (date, beforeID), or the zero state.
	SeedBefore(ctx context.Context, productID int64, date time.Time, beforeID int64) (CostState, error)
	// ListAfter returns movements strictly after position (date, afterID)
	// in chronological order, at most limit rows.
	ListAfter(ctx context.Context, productID int64, date time.Time, afterID int64, limit int) ([]Movement, error)
	InsertMovement(ctx context.Context, m *Movement) error
	UpdateDerived(ctx context.Context, m Movement) error
	GetMovement(ctx context.Context, id int64) (Movement, error)
	DeleteMovement(ctx context.Context, id int64) error
	ListByDocument(ctx context.Context, documentID int64) ([]Movement, error)
	DeleteByDocument(ctx context.Context, documentID int64) error
	LastMovement(ctx context.Context, productID int64) (Movement, bool, error)
	UpdateProductBalance(ctx context.Context, productID int64, qty decimal.Decimal) error
}

// LockerPort serializes writers per product.
type LockerPort interface {
	Acquire(ctx context.Context, productID int64) (func(), error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CascadeObserver receives the rewrite depth of each completed write.
type CascadeObserver interface {
	ObserveCascade(depth int)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// RecomputeLimit caps how many downstream movements one write may rewrite.
	RecomputeLimit int
	// Observer is notified how deep each write's recompute cascade ran.
	Observer CascadeObserver
}

// DefaultRecomputeLimit bounds a single cascade.
const DefaultRecomputeLimit = 10000

// Service owns the movement ledger: every write lands in date order and
// triggers recomputation of all later movements for the same product, so the
// stored history is always re-derivable from scratch.
type Service struct {
	repo   RepositoryPort
	locker LockerPort
	audit  AuditPort
	limit  int
	obs    CascadeObserver
}

// NewService builds Service.
func NewService(repo RepositoryPort, locker LockerPort, audit AuditPort, cfg ServiceConfig) *Service {
	limit := cfg.RecomputeLimit
	if limit <= 0 {
		limit = DefaultRecomputeLimit
	}
	return &Service{repo: repo, locker: locker, audit: audit, limit: limit, obs: cfg.Observer}
}

// RecordMovement validates input, computes derived fields from the movement's
// position in the product history, persists it and recomputes every later
// movement whose seed state changed.
func (s *Service) RecordMovement(ctx context.Context, scope shared.Scope, input RecordInput) (Movement, error) {
	if !scope.Valid() {
		return Movement{}, shared.InvalidArgumentf("scope", "company and fiscal year required")
	}
	if err := validateRecordInput(input); err != nil {
		return Movement{}, err
	}

	release, err := s.acquire(ctx, input.ProductID)
	if err != nil {
		return Movement{}, err
	}
	defer release()

	var recorded Movement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if product.CompanyID != scope.CompanyID {
			return shared.ErrScopeMismatch
		}

		seed, err := tx.SeedBefore(ctx, input.ProductID, input.Date, math.MaxInt64)
		if err != nil {
			return err
		}
		result := ApplyCosting(seed, input.Kind, input.Quantity, input.UnitPrice, input.GSTRate)

		m := Movement{
			Scope:          scope,
			ProductID:      input.ProductID,
			Kind:           input.Kind,
			Date:           input.Date,
			SourceRef:      input.SourceRef,
			PartyID:        input.PartyID,
			DocumentID:     input.DocumentID,
			DocumentLineID: input.DocumentLineID,
			UnitPrice:      input.UnitPrice,
			GSTRate:        input.GSTRate,
			CreatedBy:      input.ActorID,
		}
		if input.Kind == KindAdjustment {
			m.TargetQty = decimal.NullDecimal{Decimal: input.Quantity, Valid: true}
		}
		applyDerived(&m, result)
		if err := tx.InsertMovement(ctx, &m); err != nil {
			return err
		}

		// Movements dated after the insertion point now build on a changed
		// seed; rewrite their derived fields in order.
		if _, err := s.cascade(ctx, tx, input.ProductID, result.Next(), m.Date, m.ID); err != nil {
			return err
		}
		if err := s.refreshBalance(ctx, tx, input.ProductID); err != nil {
			return err
		}
		recorded = m
		return nil
	})
	if err != nil {
		return Movement{}, shared.MapStorageError(err)
	}

	s.auditRecord(ctx, scope, input.ActorID, fmt.Sprintf("ledger:%s", input.Kind), recorded)
	return recorded, nil
}

// DeleteMovement removes one movement and re-derives everything after it.
// The ledger stays consistent even when the removed movement sits in the
// middle of the history.
func (s *Service) DeleteMovement(ctx context.Context, scope shared.Scope, movementID int64) error {
	if !scope.Valid() {
		return shared.InvalidArgumentf("scope", "company and fiscal year required")
	}
	probe, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		return err
	}
	if probe.Scope.CompanyID != scope.CompanyID {
		return shared.ErrScopeMismatch
	}

	release, err := s.acquire(ctx, probe.ProductID)
	if err != nil {
		return err
	}
	defer release()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovement(ctx, movementID)
		if err != nil {
			return err
		}
		if err := tx.DeleteMovement(ctx, m.ID); err != nil {
			return err
		}
		seed, err := tx.SeedBefore(ctx, m.ProductID, m.Date, m.ID)
		if err != nil {
			return err
		}
		if _, err := s.cascade(ctx, tx, m.ProductID, seed, m.Date, m.ID); err != nil {
			return err
		}
		return s.refreshBalance(ctx, tx, m.ProductID)
	})
	if err != nil {
		return shared.MapStorageError(err)
	}

	s.auditRecord(ctx, scope, 0, "ledger:delete", probe)
	return nil
}

// DeleteByDocument removes every movement created from a document and
// recomputes each affected product from its earliest removed position.
// Used when an owning stock document is deleted.
func (s *Service) DeleteByDocument(ctx context.Context, scope shared.Scope, documentID int64) error {
	if !scope.Valid() {
		return shared.InvalidArgumentf("scope", "company and fiscal year required")
	}

	// Lock every touched product up front, in id order, so two concurrent
	// document deletions cannot deadlock.
	var productIDs []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements, err := tx.ListByDocument(ctx, documentID)
		if err != nil {
			return err
		}
		seen := map[int64]bool{}
		for _, m := range movements {
			if m.Scope.CompanyID != scope.CompanyID {
				return shared.ErrScopeMismatch
			}
			if !seen[m.ProductID] {
				seen[m.ProductID] = true
				productIDs = append(productIDs, m.ProductID)
			}
		}
		return nil
	})
	if err != nil {
		return shared.MapStorageError(err)
	}
	if len(productIDs) == 0 {
		return nil
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })
	releases := make([]func(), 0, len(productIDs))
	defer func() {
		for _, release := range releases {
			release()
		}
	}()
	for _, id := range productIDs {
		release, err := s.acquire(ctx, id)
		if err != nil {
			return err
		}
		releases = append(releases, release)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		movements, err := tx.ListByDocument(ctx, documentID)
		if err != nil {
			return err
		}
		if len(movements) == 0 {
			return nil
		}
		// Earliest removed position per product marks where the cascade starts.
		type position struct {
			date time.Time
			id   int64
		}
		starts := map[int64]position{}
		for _, m := range movements {
			pos, ok := starts[m.ProductID]
			if !ok || m.Date.Before(pos.date) || (m.Date.Equal(pos.date) && m.ID < pos.id) {
				starts[m.ProductID] = position{date: m.Date, id: m.ID}
			}
		}
		if err := tx.DeleteByDocument(ctx, documentID); err != nil {
			return err
		}
		for _, productID := range productIDs {
			pos := starts[productID]
			seed, err := tx.SeedBefore(ctx, productID, pos.date, pos.id)
			if err != nil {
				return err
			}
			if _, err := s.cascade(ctx, tx, productID, seed, pos.date, pos.id); err != nil {
				return err
			}
			if err := s.refreshBalance(ctx, tx, productID); err != nil {
				return err
			}
		}
		return nil
	})
	return shared.MapStorageError(err)
}

// RecomputeFrom re-derives every movement of the product dated on or after
// fromDate. Running it twice with no intervening writes is a no-op the second
// time; the updated-row count is returned for integrity tooling.
func (s *Service) RecomputeFrom(ctx context.Context, scope shared.Scope, productID int64, fromDate time.Time) (int, error) {
	if !scope.Valid() {
		return 0, shared.InvalidArgumentf("scope", "company and fiscal year required")
	}
	release, err := s.acquire(ctx, productID)
	if err != nil {
		return 0, err
	}
	defer release()

	updated := 0
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product.CompanyID != scope.CompanyID {
			return shared.ErrScopeMismatch
		}
		seed, err := tx.SeedBefore(ctx, productID, fromDate, 0)
		if err != nil {
			return err
		}
		updated, err = s.cascade(ctx, tx, productID, seed, fromDate, 0)
		if err != nil {
			return err
		}
		return s.refreshBalance(ctx, tx, productID)
	})
	if err != nil {
		return 0, shared.MapStorageError(err)
	}
	return updated, nil
}

// GetMovement returns one movement within the caller's scope.
func (s *Service) GetMovement(ctx context.Context, scope shared.Scope, movementID int64) (Movement, error) {
	m, err := s.repo.GetMovement(ctx, movementID)
	if err != nil {
		return Movement{}, err
	}
	if m.Scope.CompanyID != scope.CompanyID {
		return Movement{}, shared.ErrScopeMismatch
	}
	return m, nil
}

// ListByProduct returns the ordered movement history of one product.
func (s *Service) ListByProduct(ctx context.Context, scope shared.Scope, productID int64, from, to time.Time, limit int) ([]Movement, error) {
	if !scope.Valid() {
		return nil, shared.InvalidArgumentf("scope", "company and fiscal year required")
	}
	return s.repo.ListByProduct(ctx, scope, productID, from, to, limit)
}

// cascade walks the movements strictly after position (date, afterID) in
// order, re-applies the costing engine seeded with state, and persists rows
// whose derived fields changed. Returns the number of rewritten rows.
func (s *Service) cascade(ctx context.Context, tx TxRepository, productID int64, state CostState, date time.Time, afterID int64) (int, error) {
	rows, err := tx.ListAfter(ctx, productID, date, afterID, s.limit+1)
	if err != nil {
		return 0, err
	}
	if len(rows) > s.limit {
		return 0, fmt.Errorf("%w: more than %d movements after %s", shared.ErrRecomputeTooLarge, s.limit, date.Format("2006-01-02"))
	}
	updated := 0
	for _, m := range rows {
		result := ApplyCosting(state, m.Kind, costQuantity(m), m.UnitPrice, m.GSTRate)
		if !derivedEqual(m, result) {
			applyDerived(&m, result)
			if err := tx.UpdateDerived(ctx, m); err != nil {
				return updated, err
			}
			updated++
		}
		state = result.Next()
	}
	if s.obs != nil {
		s.obs.ObserveCascade(updated)
	}
	return updated, nil
}

// refreshBalance pins the product's cached quantity to the chronologically
// last movement's balance.
func (s *Service) refreshBalance(ctx context.Context, tx TxRepository, productID int64) error {
	last, ok, err := tx.LastMovement(ctx, productID)
	if err != nil {
		return err
	}
	qty := decimal.Zero
	if ok {
		qty = last.BalanceQty
	}
	return tx.UpdateProductBalance(ctx, productID, qty)
}

func (s *Service) acquire(ctx context.Context, productID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Acquire(ctx, productID)
}

func (s *Service) auditRecord(ctx context.Context, scope shared.Scope, actorID int64, action string, m Movement) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: scope.CompanyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "stock_movement",
		EntityID:  fmt.Sprintf("%d", m.ID),
		Meta: map[string]any{
			"product_id": m.ProductID,
			"date":       m.Date.Format("2006-01-02"),
			"source_ref": m.SourceRef,
		},
	})
}

func validateRecordInput(input RecordInput) error {
	if input.ProductID <= 0 {
		return shared.InvalidArgumentf("product_id", "required")
	}
	if !input.Kind.Valid() {
		return shared.InvalidArgumentf("kind", "unknown movement kind %q", input.Kind)
	}
	if input.Date.IsZero() {
		return shared.InvalidArgumentf("date", "required")
	}
	if input.UnitPrice.IsNegative() {
		return shared.InvalidArgumentf("unit_price", "must not be negative")
	}
	if input.GSTRate.IsNegative() || input.GSTRate.GreaterThan(hundred) {
		return shared.InvalidArgumentf("gst_rate", "must be between 0 and 100")
	}
	if input.Kind == KindAdjustment {
		if input.Quantity.IsNegative() {
			return shared.InvalidArgumentf("quantity", "adjustment target must not be negative")
		}
		return nil
	}
	if !input.Quantity.IsPositive() {
		return shared.InvalidArgumentf("quantity", "must be greater than zero")
	}
	return nil
}
