// internal/common/errors/handler.go
package errors

import (
	"context"
	"fmt"

	"rating-notifier/internal/common/metrics"
)

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

// Alerter forwards unattributable failures to an operator channel.
type Alerter interface {
	Alert(ctx context.Context, subject, message string) error
}

// Reporter classifies, reports and hands back job errors.
type Reporter struct {
	logger  Logger
	alerter Alerter
}

func NewReporter(logger Logger, alerter Alerter) *Reporter {
	return &Reporter{logger: logger, alerter: alerter}
}

// Report normalizes err, logs it, counts it, and alerts operators for the
// unattributed category. It returns the normalized error.
func (r *Reporter) Report(ctx context.Context, taskType, step string, err error) *StandardError {
	if err == nil {
		return nil
	}
	stdErr := r.normalizeError(err)
	category := GetErrorCategory(stdErr.Code)

	metrics.JobFailures.WithLabelValues(taskType, step, category).Inc()
	r.logError(taskType, step, stdErr)

	if category == CategoryUnattributed && r.alerter != nil {
		subject := fmt.Sprintf("%s: %s", taskType, stdErr.Message)
		if alertErr := r.alerter.Alert(ctx, subject, stdErr.Details); alertErr != nil {
			r.logger.Error("Failed to publish alert", map[string]interface{}{
				"taskType": taskType,
				"error":    alertErr.Error(),
			})
		}
	}
	return stdErr
}

// normalizeError ensures we always have a StandardError
func (r *Reporter) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return NewInternalError(err)
}

func (r *Reporter) logError(taskType, step string, stdErr *StandardError) {
	fields := map[string]interface{}{
		"taskType":      taskType,
		"step":          step,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range stdErr.Metadata {
		fields[k] = v
	}
	r.logger.Error("Job step failed", fields)
}
