package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/afco-erp/afco-erp/internal/jobs"
	"github.com/afco-erp/afco-erp/internal/ledger"
	"github.com/afco-erp/afco-erp/internal/shared"
)

// IntegrityScanJob replays every product's movement history from scratch and
// rewrites rows whose derived costing no longer matches. A clean ledger makes
// this a read-only pass; any rewritten row is drift worth alerting on.
type IntegrityScanJob struct {
	Pool    *pgxpool.Pool
	Ledger  *ledger.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIntegrityScanJob initialises the scan handler.
func NewIntegrityScanJob(pool *pgxpool.Pool, svc *ledger.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityScanJob {
	return &IntegrityScanJob{Pool: pool, Ledger: svc, Logger: logger, Metrics: metrics}
}

type scanTarget struct {
	productID int64
	scope     shared.Scope
}

// Handle executes the integrity scan.
func (j *IntegrityScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil || j.Ledger == nil {
		return errors.New("integrity scan: handler not configured")
	}
	var payload IntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskLedgerIntegrityScan)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("company_id", payload.CompanyID))
	logger.Info("starting ledger integrity scan")

	targets, err := j.listTargets(ctx, payload)
	if err != nil {
		resultErr = err
		logger.Error("list scan targets", slog.Any("error", err))
		return resultErr
	}

	scanned := 0
	drifted := 0
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			resultErr = err
			return resultErr
		}
		updated, err := j.Ledger.RecomputeFrom(ctx, target.scope, target.productID, time.Time{})
		if err != nil {
			// One bad product must not stop the sweep.
			logger.Warn("recompute failed",
				slog.Int64("product_id", target.productID),
				slog.Any("error", err))
			continue
		}
		scanned++
		if updated > 0 {
			drifted++
			j.Metrics.AddDrift(target.scope.CompanyID, 1)
			logger.Warn("ledger drift corrected",
				slog.Int64("product_id", target.productID),
				slog.Int("rewritten", updated))
		}
	}

	logger.Info("ledger integrity scan finished",
		slog.Int("scanned", scanned),
		slog.Int("drifted", drifted))
	return nil
}

// listTargets pairs each product with its company's open fiscal year.
func (j *IntegrityScanJob) listTargets(ctx context.Context, payload IntegrityScanPayload) ([]scanTarget, error) {
	query := `SELECT p.id, p.company_id, fy.id
FROM products p
JOIN fiscal_years fy ON fy.company_id = p.company_id AND fy.status = 'open'
WHERE p.is_active`
	args := []any{}
	if payload.CompanyID > 0 {
		args = append(args, payload.CompanyID)
		query += " AND p.company_id = $1"
	}
	query += " ORDER BY p.id"

	rows, err := j.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	targets := []scanTarget{}
	for rows.Next() {
		var t scanTarget
		if err := rows.Scan(&t.productID, &t.scope.CompanyID, &t.scope.FiscalYearID); err != nil {
			return nil, err
		}
		targets = append(targets, t)
		if payload.MaxProducts > 0 && len(targets) >= payload.MaxProducts {
			break
		}
	}
	return targets, rows.Err()
}

func (j *IntegrityScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
