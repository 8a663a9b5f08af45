// Package mailer delivers outbox notifications through a bulk mail provider.
package mailer

import (
	"context"
	"fmt"
	"time"

	appaws "rating-notifier/internal/common/aws"
	"rating-notifier/internal/common/config"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/models"
)

const (
	ProviderSES  = "ses"
	ProviderSMTP = "smtp"
)

// Mailer sends one batch of notifications of a single type. A returned error
// means the batch must be treated as unsent.
type Mailer interface {
	Send(ctx context.Context, typ models.NotificationType, notifications []models.Notification) error
}

// Subject returns the email subject for a notification type.
func Subject(typ models.NotificationType) string {
	switch typ {
	case models.NotificationTypeRatingChange:
		return "Rating Change"
	case models.NotificationTypeInvalidHandle:
		return "Invalid Handle"
	default:
		return ""
	}
}

// New builds the transport selected by cfg.Mail.Provider.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (Mailer, error) {
	from := cfg.Mail.From(cfg.App)

	switch cfg.Mail.Provider {
	case ProviderSES:
		client, err := appaws.NewSESClient(ctx, cfg.Mail.SES.Region)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		return NewSESMailer(client, SESOptions{
			From: from,
			Templates: map[models.NotificationType]string{
				models.NotificationTypeRatingChange:  cfg.Mail.SES.RatingChangeTemplate,
				models.NotificationTypeInvalidHandle: cfg.Mail.SES.InvalidHandleTemplate,
			},
			ConfigurationSet: cfg.Mail.SES.ConfigurationSet,
		}, log), nil
	case ProviderSMTP:
		return NewSMTPMailer(SMTPOptions{
			Host:     cfg.Mail.SMTP.Host,
			Port:     cfg.Mail.SMTP.Port,
			Username: cfg.Mail.SMTP.Username,
			Password: cfg.Mail.SMTP.Password,
			From:     from,
			Timeout:  30 * time.Second,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %q", cfg.Mail.Provider)
	}
}

func recipients(notifications []models.Notification) []string {
	out := make([]string, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, n.Email)
	}
	return out
}
