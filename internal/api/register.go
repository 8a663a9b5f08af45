package api

import (
	netmail "net/mail"
	"strconv"
	"strings"

	"rating-notifier/internal/common/metrics"
	"rating-notifier/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Webhook responses understood by the inbound mail relay.
const (
	webhookAccept     = fiber.StatusOK
	webhookTryAgain   = fiber.StatusInternalServerError
	webhookDoNotRetry = fiber.StatusNotAcceptable
)

func parseIncomingMail(raw models.RawIncomingMail) models.IncomingMail {
	return models.IncomingMail{
		Email:     strings.TrimSpace(raw.Sender),
		Handle:    strings.TrimSpace(raw.Subject),
		Timestamp: strings.TrimSpace(raw.Timestamp),
		Token:     strings.TrimSpace(raw.Token),
		Signature: strings.TrimSpace(raw.Signature),
	}
}

// deliverableAddress accepts a bare addr-spec only. A display name or an
// embedded line break would fail every later send to it.
func deliverableAddress(email string) bool {
	if strings.ContainsAny(email, "\r\n") {
		return false
	}
	addr, err := netmail.ParseAddress(email)
	if err != nil {
		return false
	}
	return addr.Name == "" && addr.Address == email
}

// register handles one inbound registration email. An existing registration
// for the sender is reset to UNKNOWN with the new handle, otherwise a new
// record is created.
func (s *Server) register(c *fiber.Ctx) error {
	var raw models.RawIncomingMail
	if err := c.BodyParser(&raw); err != nil {
		s.log.Info("Unreadable registration webhook", map[string]interface{}{"error": err.Error()})
		return s.webhookStatus(c, webhookDoNotRetry)
	}
	mail := parseIncomingMail(raw)

	if err := s.deps.Verifier.AuthenticateWebhook(c.Get(fiber.HeaderAuthorization), mail.Timestamp, mail.Token, mail.Signature); err != nil {
		s.log.Info("Rejected unauthenticated registration webhook", map[string]interface{}{"ip": c.IP()})
		return s.webhookStatus(c, webhookDoNotRetry)
	}

	if mail.Email == "" {
		s.log.Info("Registration webhook without sender", nil)
		return s.webhookStatus(c, webhookDoNotRetry)
	}
	if !deliverableAddress(mail.Email) {
		s.log.Info("Registration webhook with malformed sender", map[string]interface{}{"sender": strconv.Quote(mail.Email)})
		return s.webhookStatus(c, webhookDoNotRetry)
	}

	ctx := c.UserContext()
	log := s.log.WithFields(map[string]interface{}{"email": mail.Email, "handle": mail.Handle})

	existing, err := s.deps.Handles.GetByEmail(ctx, mail.Email)
	if err != nil {
		log.Error("Registration lookup failed", map[string]interface{}{"error": err.Error()})
		return s.webhookStatus(c, webhookTryAgain)
	}

	if existing != nil {
		if err := s.deps.Handles.ResetToUnknown(ctx, existing.ID, mail.Handle); err != nil {
			log.Error("Re-registration failed", map[string]interface{}{"id": existing.ID, "error": err.Error()})
			return s.webhookStatus(c, webhookTryAgain)
		}
		log.Info("Handle re-registered", map[string]interface{}{"id": existing.ID, "previousHandle": existing.Handle})
		return s.webhookStatus(c, webhookAccept)
	}

	record, err := s.deps.Handles.Create(ctx, mail.Email, mail.Handle)
	if err != nil {
		log.Error("Registration failed", map[string]interface{}{"error": err.Error()})
		return s.webhookStatus(c, webhookTryAgain)
	}
	log.Info("Handle registered", map[string]interface{}{"id": record.ID})
	return s.webhookStatus(c, webhookAccept)
}

func (s *Server) webhookStatus(c *fiber.Ctx, status int) error {
	metrics.WebhookRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	return c.SendStatus(status)
}
