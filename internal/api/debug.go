package api

import (
	"strconv"

	"rating-notifier/internal/models"

	"github.com/gofiber/fiber/v2"
)

type debugQueues struct {
	Users    map[models.HandleState][]models.HandleRecord `json:"users"`
	Messages debugMessages                                `json:"messages"`
}

type debugMessages struct {
	InvalidHandle debugMessageStates `json:"invalidHandle"`
	RatingChange  debugMessageStates `json:"ratingChange"`
}

type debugMessageStates struct {
	Unsent []models.Notification `json:"unsent"`
	Sent   []models.Notification `json:"sent"`
}

type debugHandle struct {
	Users    []models.HandleRecord `json:"users"`
	Messages []models.Notification `json:"messages"`
}

func debugCORS(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
	c.Set(fiber.HeaderAccessControlAllowMethods, "GET,OPTIONS")
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type,Authorization")
	return c.Next()
}

// debug dumps either everything stored for one handle or the head of every
// queue. It requires the operator token.
func (s *Server) debug(c *fiber.Ctx) error {
	if err := s.deps.Verifier.AuthenticateOperator(c.Get(fiber.HeaderAuthorization)); err != nil {
		return c.SendStatus(fiber.StatusForbidden)
	}

	ctx := c.UserContext()

	if handle := c.Query("handle"); handle != "" {
		users, err := s.deps.Handles.GetByHandle(ctx, handle)
		if err != nil {
			return err
		}
		messages, err := s.deps.Notifications.GetByHandle(ctx, handle)
		if err != nil {
			return err
		}
		return c.JSON(debugHandle{Users: emptyIfNil(users), Messages: emptyIfNil(messages)})
	}

	limit := s.deps.DebugLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	out := debugQueues{Users: make(map[models.HandleState][]models.HandleRecord, len(models.HandleStates))}
	for _, state := range models.HandleStates {
		records, err := s.deps.Handles.GetByState(ctx, state, limit)
		if err != nil {
			return err
		}
		out.Users[state] = emptyIfNil(records)
	}

	var err error
	if out.Messages.InvalidHandle, err = s.messageStates(c, models.NotificationTypeInvalidHandle, limit); err != nil {
		return err
	}
	if out.Messages.RatingChange, err = s.messageStates(c, models.NotificationTypeRatingChange, limit); err != nil {
		return err
	}
	return c.JSON(out)
}

func (s *Server) messageStates(c *fiber.Ctx, typ models.NotificationType, limit int) (debugMessageStates, error) {
	ctx := c.UserContext()
	unsent, err := s.deps.Notifications.GetByStateAndType(ctx, models.NotificationStateUnsent, typ, limit)
	if err != nil {
		return debugMessageStates{}, err
	}
	sent, err := s.deps.Notifications.GetByStateAndType(ctx, models.NotificationStateSent, typ, limit)
	if err != nil {
		return debugMessageStates{}, err
	}
	return debugMessageStates{Unsent: emptyIfNil(unsent), Sent: emptyIfNil(sent)}, nil
}

func emptyIfNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
