package mailer

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	apperrors "rating-notifier/internal/common/errors"
	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/models"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPMailer renders the embedded templates locally and sends one message per
// recipient. The first failure aborts the batch.
type SMTPMailer struct {
	addr     string
	auth     smtp.Auth
	from     string
	envelope string
	timeout  time.Duration
	send     SendFunc
	logger   logger.Logger
}

func NewSMTPMailer(opts SMTPOptions, log logger.Logger) (*SMTPMailer, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	addr, err := mail.ParseAddress(opts.From)
	if err != nil {
		return nil, fmt.Errorf("parse from address %q: %w", opts.From, err)
	}

	var auth smtp.Auth
	if opts.Username != "" {
		auth = smtp.PlainAuth("", opts.Username, opts.Password, opts.Host)
	}

	return &SMTPMailer{
		addr:     fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		auth:     auth,
		from:     opts.From,
		envelope: addr.Address,
		timeout:  opts.Timeout,
		send:     smtp.SendMail,
		logger:   log.WithFields(map[string]interface{}{"component": "mailer", "provider": ProviderSMTP}),
	}, nil
}

// WithSendFunc replaces the SMTP dial used by Send.
func (m *SMTPMailer) WithSendFunc(fn SendFunc) *SMTPMailer {
	m.send = fn
	return m
}

func (m *SMTPMailer) Send(ctx context.Context, typ models.NotificationType, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	subject := Subject(typ)
	for _, n := range notifications {
		if err := ctx.Err(); err != nil {
			return apperrors.NewMailSendFailedError(string(typ), err)
		}

		body, err := Render(typ, n.Data)
		if err != nil {
			return apperrors.NewMailSendFailedError(string(typ), err)
		}

		msg := m.buildMessage(n.Email, subject, body)
		if err := m.sendWithTimeout(ctx, n.Email, msg); err != nil {
			m.logger.Error("SMTP send failed", map[string]interface{}{
				"type":  string(typ),
				"to":    n.Email,
				"error": err.Error(),
			})
			return apperrors.NewMailSendFailedError(string(typ), err)
		}
	}

	m.logger.Info("Emails sent", map[string]interface{}{
		"type":       string(typ),
		"count":      len(notifications),
		"recipients": recipients(notifications),
	})
	return nil
}

// sendWithTimeout bounds a single SMTP exchange. net/smtp has no context
// support, so an abandoned send finishes in the background.
func (m *SMTPMailer) sendWithTimeout(ctx context.Context, to string, msg []byte) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- m.send(m.addr, m.auth, m.envelope, []string{to}, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SMTPMailer) buildMessage(to, subject, body string) []byte {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("From: %s\r\n", m.from))
	builder.WriteString(fmt.Sprintf("To: %s\r\n", to))
	builder.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	builder.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z)))
	builder.WriteString("MIME-Version: 1.0\r\n")
	builder.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	builder.WriteString("\r\n")
	builder.WriteString(body)

	return []byte(builder.String())
}
