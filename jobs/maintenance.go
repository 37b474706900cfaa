package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/afco-erp/afco-erp/internal/jobs"
	"github.com/afco-erp/afco-erp/internal/shared"
)

// DefaultIdempotencyRetention is how long processed keys are kept by default.
const DefaultIdempotencyRetention = 30 * 24 * time.Hour

// IdempotencyCleanupJob purges processed idempotency keys past retention.
type IdempotencyCleanupJob struct {
	Store   *shared.IdempotencyStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle executes the cleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = DefaultIdempotencyRetention
	}

	tracker := j.Metrics.Track(TaskIdempotencyCleanup)
	err := j.Store.Cleanup(ctx, payload.Retention)
	if err != nil {
		j.logger().Error("idempotency cleanup", slog.Any("error", err))
	} else {
		j.logger().Info("idempotency cleanup finished", slog.Duration("retention", payload.Retention))
	}
	return tracker.End(err)
}

func (j *IdempotencyCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
