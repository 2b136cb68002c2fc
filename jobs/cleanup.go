package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gastromanager/gastromanager/internal/observability"
	"github.com/gastromanager/gastromanager/internal/shared"
)

const (
	// TaskIdempotencyCleanup prunes stale idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// IdempotencyCleanupPayload carries the retention period for old keys.
type IdempotencyCleanupPayload struct {
	OlderThan time.Duration `json:"older_than"`
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask(olderThan time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{OlderThan: olderThan})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupJob removes idempotency keys past their retention.
type IdempotencyCleanupJob struct {
	store   *shared.IdempotencyStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewIdempotencyCleanupJob constructs the job.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, logger *slog.Logger, metrics *observability.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{store: store, logger: logger, metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	olderThan := payload.OlderThan
	if olderThan <= 0 {
		olderThan = 24 * time.Hour
	}

	err := j.store.Cleanup(ctx, olderThan)
	j.metrics.ObserveJob(TaskIdempotencyCleanup, err)
	if err != nil {
		return err
	}
	j.logger.Info("idempotency cleanup finished", slog.Duration("older_than", olderThan))
	return nil
}
