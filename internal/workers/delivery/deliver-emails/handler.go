// internal/workers/delivery/deliver-emails/handler.go
package deliveremails

import (
	"context"
	"fmt"
	"time"

	apperrors "rating-notifier/internal/common/errors"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/common/metrics"
	"rating-notifier/internal/common/observability"
	"rating-notifier/internal/models"
)

// One controller type serves both notification types.
const (
	TaskTypeRatingChange  = "deliver-rating-change-emails"
	TaskTypeInvalidHandle = "deliver-invalid-handle-emails"
)

// TaskTypeFor returns the job name delivering typ.
func TaskTypeFor(typ models.NotificationType) (string, error) {
	switch typ {
	case models.NotificationTypeRatingChange:
		return TaskTypeRatingChange, nil
	case models.NotificationTypeInvalidHandle:
		return TaskTypeInvalidHandle, nil
	default:
		return "", fmt.Errorf("no delivery job for notification type %q", typ)
	}
}

// Define interfaces for mocking
type Outbox interface {
	GetByStateAndType(ctx context.Context, state models.NotificationState, typ models.NotificationType, limit int) ([]models.Notification, error)
	MarkSent(ctx context.Context, notifications []models.Notification) error
}

type Mailer interface {
	Send(ctx context.Context, typ models.NotificationType, notifications []models.Notification) error
}

type Handler struct {
	config   *Config
	taskType string
	typ      models.NotificationType
	outbox   Outbox
	mailer   Mailer
	reporter *apperrors.Reporter
	obs      *observability.Observability
	logger   logger.Logger
}

func NewHandler(config *Config, typ models.NotificationType, ob Outbox, mailer Mailer, reporter *apperrors.Reporter, obs *observability.Observability, log logger.Logger) (*Handler, error) {
	taskType, err := TaskTypeFor(typ)
	if err != nil {
		return nil, err
	}
	l := log.WithFields(map[string]interface{}{"taskType": taskType})
	if reporter == nil {
		reporter = apperrors.NewReporter(l, nil)
	}
	return &Handler{
		config:   config,
		taskType: taskType,
		typ:      typ,
		outbox:   ob,
		mailer:   mailer,
		reporter: reporter,
		obs:      obs,
		logger:   l,
	}, nil
}

func (h *Handler) TaskType() string { return h.taskType }

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
	metrics.JobRuns.WithLabelValues(h.taskType, status).Inc()
	h.obs.RecordJobProcessed(ctx, h.taskType, status)
	h.obs.RecordJobDuration(ctx, h.taskType, time.Since(start), status)

	if err == nil && output.Fetched > 0 {
		h.obs.RecordItems(ctx, h.taskType, output.Sent)
		h.logger.Info("Job completed", map[string]interface{}{
			"fetched":    output.Fetched,
			"sent":       output.Sent,
			"durationMs": time.Since(start).Milliseconds(),
		})
	}
}

// Execute sends the oldest UNSENT notifications of the handler's type and
// marks them SENT. Nothing is marked when the send fails.
func (h *Handler) Execute(ctx context.Context) (*Output, error) {
	notifications, err := h.outbox.GetByStateAndType(ctx, models.NotificationStateUnsent, h.typ, h.config.BatchSize)
	if err != nil {
		return nil, h.reporter.Report(ctx, h.taskType, "fetch-unsent", err)
	}

	output := &Output{Fetched: len(notifications)}
	if len(notifications) == 0 {
		return output, nil
	}

	if err := h.mailer.Send(ctx, h.typ, notifications); err != nil {
		return nil, h.reporter.Report(ctx, h.taskType, "send", err)
	}

	if err := h.outbox.MarkSent(ctx, notifications); err != nil {
		return nil, h.reporter.Report(ctx, h.taskType, "mark-sent", err)
	}
	output.Sent = len(notifications)
	return output, nil
}
