package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "rating-notifier/internal/common/errors"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// sesMaxDestinations is the SES limit for one SendBulkTemplatedEmail call.
const sesMaxDestinations = 50

// SESService is the subset of the SES API used for delivery.
type SESService interface {
	SendBulkTemplatedEmail(ctx context.Context, params *ses.SendBulkTemplatedEmailInput, optFns ...func(*ses.Options)) (*ses.SendBulkTemplatedEmailOutput, error)
}

type SESOptions struct {
	From             string
	Templates        map[models.NotificationType]string
	ConfigurationSet string
}

// SESMailer sends provider-side templated bulk email. Each recipient gets its
// notification payload as replacement data.
type SESMailer struct {
	client SESService
	opts   SESOptions
	logger logger.Logger
}

func NewSESMailer(client SESService, opts SESOptions, log logger.Logger) *SESMailer {
	return &SESMailer{
		client: client,
		opts:   opts,
		logger: log.WithFields(map[string]interface{}{"component": "mailer", "provider": ProviderSES}),
	}
}

func (m *SESMailer) Send(ctx context.Context, typ models.NotificationType, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	tmpl := m.opts.Templates[typ]
	if tmpl == "" {
		return apperrors.NewMailSendFailedError(string(typ), fmt.Errorf("no SES template configured"))
	}

	for start := 0; start < len(notifications); start += sesMaxDestinations {
		end := start + sesMaxDestinations
		if end > len(notifications) {
			end = len(notifications)
		}
		if err := m.sendChunk(ctx, typ, tmpl, notifications[start:end]); err != nil {
			return apperrors.NewMailSendFailedError(string(typ), err)
		}
	}

	m.logger.Info("Emails sent", map[string]interface{}{
		"type":  string(typ),
		"count": len(notifications),
	})
	return nil
}

func (m *SESMailer) sendChunk(ctx context.Context, typ models.NotificationType, tmpl string, notifications []models.Notification) error {
	destinations := make([]types.BulkEmailDestination, 0, len(notifications))
	for _, n := range notifications {
		data, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("encode replacement data for %s: %w", n.ID, err)
		}
		destinations = append(destinations, types.BulkEmailDestination{
			Destination:             &types.Destination{ToAddresses: []string{n.Email}},
			ReplacementTemplateData: awssdk.String(string(data)),
		})
	}

	input := &ses.SendBulkTemplatedEmailInput{
		Source:              awssdk.String(m.opts.From),
		Template:            awssdk.String(tmpl),
		DefaultTemplateData: awssdk.String(`{"subject":"` + Subject(typ) + `"}`),
		Destinations:        destinations,
	}
	if m.opts.ConfigurationSet != "" {
		input.ConfigurationSetName = awssdk.String(m.opts.ConfigurationSet)
	}

	out, err := m.client.SendBulkTemplatedEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("send bulk templated email: %w", err)
	}

	var failed []string
	for i, st := range out.Status {
		if st.Status == types.BulkEmailStatusSuccess {
			continue
		}
		recipient := "?"
		if i < len(notifications) {
			recipient = notifications[i].Email
		}
		failed = append(failed, fmt.Sprintf("%s: %s %s", recipient, st.Status, awssdk.ToString(st.Error)))
	}
	if len(failed) > 0 {
		m.logger.Error("SES rejected destinations", map[string]interface{}{
			"type":   string(typ),
			"failed": failed,
		})
		return fmt.Errorf("%d of %d destinations failed: %s", len(failed), len(notifications), strings.Join(failed, "; "))
	}
	return nil
}
