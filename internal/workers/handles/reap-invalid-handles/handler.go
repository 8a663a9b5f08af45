// internal/workers/handles/reap-invalid-handles/handler.go
package reapinvalidhandles

import (
	"context"
	"time"

	apperrors "rating-notifier/internal/common/errors"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/common/metrics"
	"rating-notifier/internal/common/observability"
	"rating-notifier/internal/models"
	"rating-notifier/internal/outbox"
)

const (
	TaskType = "reap-invalid-handles"
)

// Define interfaces for mocking
type Registry interface {
	GetByState(ctx context.Context, state models.HandleState, limit int) ([]models.HandleRecord, error)
	Delete(ctx context.Context, records []models.HandleRecord) error
}

type Outbox interface {
	Enqueue(ctx context.Context, notifications []models.NewNotification) error
}

type Handler struct {
	config   *Config
	registry Registry
	outbox   Outbox
	reporter *apperrors.Reporter
	obs      *observability.Observability
	logger   logger.Logger
}

func NewHandler(config *Config, registry Registry, ob Outbox, reporter *apperrors.Reporter, obs *observability.Observability, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	if reporter == nil {
		reporter = apperrors.NewReporter(l, nil)
	}
	return &Handler{
		config:   config,
		registry: registry,
		outbox:   ob,
		reporter: reporter,
		obs:      obs,
		logger:   l,
	}
}

// Run executes one bounded batch. Failures are reported, never returned.
func (h *Handler) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	start := time.Now()
	output, err := h.Execute(ctx)

	status := metrics.OutcomeSuccess
	if err != nil {
		status = metrics.OutcomeFailure
	}
	metrics.JobRuns.WithLabelValues(TaskType, status).Inc()
	h.obs.RecordJobProcessed(ctx, TaskType, status)
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), status)

	if err == nil && output.Fetched > 0 {
		h.obs.RecordItems(ctx, TaskType, output.Reaped)
		h.logger.Info("Job completed", map[string]interface{}{
			"fetched":    output.Fetched,
			"reaped":     output.Reaped,
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
}

// Execute queues an invalid-handle notification for every INVALID record in
// the batch and only then deletes them. A failed enqueue deletes nothing.
func (h *Handler) Execute(ctx context.Context) (*Output, error) {
	records, err := h.registry.GetByState(ctx, models.HandleStateInvalid, h.config.BatchSize)
	if err != nil {
		return nil, h.reporter.Report(ctx, TaskType, "fetch-invalid", err)
	}

	output := &Output{Fetched: len(records)}
	if len(records) == 0 {
		return output, nil
	}

	if err := h.outbox.Enqueue(ctx, outbox.InvalidHandleNotifications(records)); err != nil {
		return nil, h.reporter.Report(ctx, TaskType, "enqueue-invalid-handles", err)
	}

	if err := h.registry.Delete(ctx, records); err != nil {
		return nil, h.reporter.Report(ctx, TaskType, "delete", err)
	}
	output.Reaped = len(records)
	return output, nil
}
