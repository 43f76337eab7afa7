package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warelog/warelog/internal/batch"
)

// ExpiryScanJob walks stocked batches and logs those expiring inside the
// window so the floor can rotate or quarantine them.
type ExpiryScanJob struct {
	pool    *pgxpool.Pool
	batches *batch.Store
	logger  *slog.Logger
}

// NewExpiryScanJob constructs the job.
func NewExpiryScanJob(pool *pgxpool.Pool, logger *slog.Logger) *ExpiryScanJob {
	return &ExpiryScanJob{pool: pool, batches: batch.NewStore(), logger: logger}
}

// Handle processes TaskBatchExpiryScan tasks.
func (j *ExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ExpiryScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	windowDays := payload.WindowDays
	if windowDays <= 0 {
		windowDays = 30
	}

	expiring, err := j.batches.Expiring(ctx, j.pool, time.Now().AddDate(0, 0, windowDays))
	if err != nil {
		return err
	}
	for _, b := range expiring {
		j.logger.Warn("batch approaching expiry",
			slog.Int64("batch_id", b.ID),
			slog.String("batch_number", b.Number),
			slog.Int64("product_id", b.ProductID),
			slog.String("remaining", b.CurrentQuantity.String()),
			slog.Time("expiry_date", *b.ExpiryDate))
	}
	j.logger.Info("expiry scan finished",
		slog.Int("window_days", windowDays),
		slog.Int("expiring", len(expiring)))
	return nil
}
