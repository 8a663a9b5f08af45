// internal/workers/handles/verify-unknown-handles/handler.go
package verifyunknownhandles

import (
	"context"
	"time"

	apperrors "rating-notifier/internal/common/errors"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/common/metrics"
	"rating-notifier/internal/common/observability"
	"rating-notifier/internal/models"
)

const (
	TaskType = "verify-unknown-handles"
)

// Define interfaces for mocking
type Registry interface {
	GetByState(ctx context.Context, state models.HandleState, limit int) ([]models.HandleRecord, error)
	MarkInvalid(ctx context.Context, records []models.HandleRecord) error
	MarkValid(ctx context.Context, records []models.HandleRecord) error
}

type RatingSource interface {
	FetchRatings(ctx context.Context, handles []string) (*models.RatingsResponse, error)
}

type Handler struct {
	config   *Config
	registry Registry
	ratings  RatingSource
	reporter *apperrors.Reporter
	obs      *observability.Observability
	logger   logger.Logger
}

func NewHandler(config *Config, registry Registry, ratings RatingSource, reporter *apperrors.Reporter, obs *observability.Observability, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	if reporter == nil {
		reporter = apperrors.NewReporter(l, nil)
	}
	return &Handler{
		config:   config,
		registry: registry,
		ratings:  ratings,
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

	if err == nil {
		h.obs.RecordItems(ctx, TaskType, output.Fetched)
		h.logger.Info("Job completed", map[string]interface{}{
			"fetched":    output.Fetched,
			"invalid":    output.Invalid,
			"valid":      output.Valid,
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
}

// Execute reads a batch of UNKNOWN handles and resolves them. If any handle
// is rejected, only the rejected records move to INVALID and the rest stay
// UNKNOWN for the next run. Otherwise the whole batch becomes VALID.
func (h *Handler) Execute(ctx context.Context) (*Output, error) {
	records, err := h.registry.GetByState(ctx, models.HandleStateUnknown, h.config.BatchSize)
	if err != nil {
		return nil, h.reporter.Report(ctx, TaskType, "fetch-unknown", err)
	}

	output := &Output{Fetched: len(records)}
	if len(records) == 0 {
		return output, nil
	}

	res, err := h.ratings.FetchRatings(ctx, models.Handles(records))
	if err != nil {
		return nil, h.reporter.Report(ctx, TaskType, "fetch-ratings", err)
	}

	if len(res.InvalidHandles) > 0 {
		invalid := models.FilterByHandles(records, res.InvalidHandles)
		if len(invalid) == 0 {
			h.logger.Warn("Rejected handles match no record in the batch", map[string]interface{}{
				"invalidHandles": res.InvalidHandles,
			})
			return output, nil
		}
		if err := h.registry.MarkInvalid(ctx, invalid); err != nil {
			return nil, h.reporter.Report(ctx, TaskType, "mark-invalid", err)
		}
		output.Invalid = len(invalid)
		return output, nil
	}

	if err := h.registry.MarkValid(ctx, records); err != nil {
		return nil, h.reporter.Report(ctx, TaskType, "mark-valid", err)
	}
	output.Valid = len(records)
	return output, nil
}
