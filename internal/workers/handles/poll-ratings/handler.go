// internal/workers/handles/poll-ratings/handler.go
package pollratings

import (
	"context"
	"time"

	apperrors "rating-notifier/internal/common/errors"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/common/metrics"
	"rating-notifier/internal/common/observability"
	"rating-notifier/internal/detector"
	"rating-notifier/internal/models"
	"rating-notifier/internal/outbox"
)

const (
	TaskType = "poll-ratings"
)

// Define interfaces for mocking
type Registry interface {
	GetByState(ctx context.Context, state models.HandleState, limit int) ([]models.HandleRecord, error)
	MarkInvalid(ctx context.Context, records []models.HandleRecord) error
	UpdateData(ctx context.Context, records []models.HandleRecord) error
}

type RatingSource interface {
	FetchRatings(ctx context.Context, handles []string) (*models.RatingsResponse, error)
}

type Outbox interface {
	Enqueue(ctx context.Context, notifications []models.NewNotification) error
}

type ChangeDetector interface {
	Detect(records []models.HandleRecord, snapshots []models.RatingSnapshot) detector.Result
}

type Handler struct {
	config   *Config
	registry Registry
	ratings  RatingSource
	outbox   Outbox
	detector ChangeDetector
	reporter *apperrors.Reporter
	obs      *observability.Observability
	logger   logger.Logger
}

func NewHandler(config *Config, registry Registry, ratings RatingSource, ob Outbox, det ChangeDetector, reporter *apperrors.Reporter, obs *observability.Observability, log logger.Logger) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	if reporter == nil {
		reporter = apperrors.NewReporter(l, nil)
	}
	if det == nil {
		det = detector.New(l)
	}
	return &Handler{
		config:   config,
		registry: registry,
		ratings:  ratings,
		outbox:   ob,
		detector: det,
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
			"changed":    output.Changed,
			"unchanged":  output.Unchanged,
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
}

// Execute polls the oldest VALID handles. Rejected handles move to INVALID and
// end the run. Otherwise changed ratings are enqueued before any record is
// updated, so a failed enqueue leaves the change to be detected again.
func (h *Handler) Execute(ctx context.Context) (*Output, error) {
	records, err := h.registry.GetByState(ctx, models.HandleStateValid, h.config.BatchSize)
	if err != nil {
		return nil, h.reporter.Report(ctx, TaskType, "fetch-valid", err)
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

	result := h.detector.Detect(records, res.Users)
	output.Changed = len(result.Changed)
	output.Unchanged = len(result.Unchanged)

	if len(result.Changed) > 0 {
		if err := h.outbox.Enqueue(ctx, outbox.RatingChangeNotifications(result.Changed)); err != nil {
			return nil, h.reporter.Report(ctx, TaskType, "enqueue-rating-changes", err)
		}
	}

	polled := make([]models.HandleRecord, 0, len(records))
	polled = append(polled, result.Changed...)
	polled = append(polled, result.Unchanged...)
	if err := h.registry.UpdateData(ctx, polled); err != nil {
		return nil, h.reporter.Report(ctx, TaskType, "update-data", err)
	}
	return output, nil
}
