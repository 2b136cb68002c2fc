package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/gastromanager/gastromanager/internal/ledger"
	"github.com/gastromanager/gastromanager/internal/observability"
	"github.com/gastromanager/gastromanager/internal/shared"
)

const (
	// TaskShipmentExpiryScan flags ingredient lots approaching their
	// expiration date.
	TaskShipmentExpiryScan = "shipments:expiry_scan"
)

// ShipmentExpiryPayload carries the lookahead window for the scan.
type ShipmentExpiryPayload struct {
	Window time.Duration `json:"window"`
}

// NewShipmentExpiryTask constructs an Asynq task for the expiry scan.
func NewShipmentExpiryTask(window time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(ShipmentExpiryPayload{Window: window})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskShipmentExpiryScan, body, asynq.Queue(QueueDefault)), nil
}

// ExpiryScanner lists shipments whose lot expires before a cutoff.
type ExpiryScanner interface {
	ShipmentsExpiringBefore(ctx context.Context, cutoff time.Time) ([]ledger.IncomingShipment, error)
}

// ExpiryScanJob warns about expiring lots so staff can rotate them out.
// Warnings land in the activity journal as well as the log.
type ExpiryScanJob struct {
	scanner ExpiryScanner
	audit   *shared.AuditLogger
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewExpiryScanJob constructs the job.
func NewExpiryScanJob(scanner ExpiryScanner, audit *shared.AuditLogger, logger *slog.Logger, metrics *observability.Metrics) *ExpiryScanJob {
	return &ExpiryScanJob{scanner: scanner, audit: audit, logger: logger, metrics: metrics}
}

// Handle processes TaskShipmentExpiryScan tasks.
func (j *ExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ShipmentExpiryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	window := payload.Window
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}

	cutoff := time.Now().Add(window)
	shipments, err := j.scanner.ShipmentsExpiringBefore(ctx, cutoff)
	j.metrics.ObserveJob(TaskShipmentExpiryScan, err)
	if err != nil {
		return err
	}
	for _, s := range shipments {
		j.logger.Warn("ingredient lot expiring",
			slog.Int64("shipment_id", s.ID),
			slog.String("ingredient", s.IngredientName),
			slog.String("lot", s.LotNumber),
			slog.Time("expires", *s.ExpirationDate),
		)
		if j.audit != nil {
			_ = j.audit.Record(ctx, shared.AuditLog{
				Action:   "jobs:expiry_warning",
				Entity:   "shipment",
				EntityID: strconv.FormatInt(s.ID, 10),
				Meta: map[string]any{
					"ingredient": s.IngredientName,
					"lot_number": s.LotNumber,
					"expires":    s.ExpirationDate.Format(time.RFC3339),
				},
			})
		}
	}
	j.logger.Info("expiry scan finished", slog.Int("expiring", len(shipments)))
	return nil
}
