package outbox

import "rating-notifier/internal/models"

// InvalidHandleNotifications builds one invalid-handle notification per record.
// The payload carries the handle only.
func InvalidHandleNotifications(records []models.HandleRecord) []models.NewNotification {
	out := make([]models.NewNotification, 0, len(records))
	for _, r := range records {
		out = append(out, models.NewNotification{
			Email: r.Email,
			Type:  models.NotificationTypeInvalidHandle,
			Data:  models.NotificationPayload{Handle: r.Handle},
		})
	}
	return out
}

// RatingChangeNotifications builds one rating-change notification per record,
// copying handle, rating, rank and color from the record's current snapshot.
func RatingChangeNotifications(records []models.HandleRecord) []models.NewNotification {
	out := make([]models.NewNotification, 0, len(records))
	for _, r := range records {
		payload := models.NotificationPayload{Handle: r.Handle}
		if r.Data != nil {
			rating := r.Data.Rating
			payload.Rating = &rating
			payload.Rank = r.Data.Rank
			payload.Color = r.Data.Color
		}
		out = append(out, models.NewNotification{
			Email: r.Email,
			Type:  models.NotificationTypeRatingChange,
			Data:  payload,
		})
	}
	return out
}
