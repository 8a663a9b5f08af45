package api

import (
	"strconv"

	apperrors "rating-notifier/internal/common/errors"
	"rating-notifier/internal/models"

	"github.com/gofiber/fiber/v2"
)

// analytics renders a shields.io endpoint badge.
func (s *Server) analytics(c *fiber.Ctx) error {
	ctx := c.UserContext()
	typ := models.AnalyticsType(c.Query("type"))

	var (
		label string
		count int
		err   error
	)
	switch typ {
	case models.AnalyticsTypeUsers:
		label = "Active Users"
		count, err = s.deps.Handles.CountValid(ctx)
	case models.AnalyticsTypeMessages:
		label = "Rating Changes Sent"
		count, err = s.deps.Notifications.CountSent(ctx, models.NotificationTypeRatingChange)
	default:
		err = apperrors.NewInvalidAnalyticsTypeError(string(typ))
	}
	if err != nil {
		return err
	}

	return c.JSON(models.Analytics{
		SchemaVersion: 1,
		Label:         label,
		Message:       strconv.Itoa(count),
	})
}
