// internal/models/notification.go
package models

import "time"

// NotificationType selects the email template and delivery queue.
type NotificationType string

const (
	NotificationTypeInvalidHandle NotificationType = "invalid_handle"
	NotificationTypeRatingChange  NotificationType = "rating_change"
)

// NotificationState tracks whether the outbox has handed a record to the mail transport.
type NotificationState string

const (
	NotificationStateUnsent NotificationState = "unsent"
	NotificationStateSent   NotificationState = "sent"
)

// NotificationTypes lists every notification type.
var NotificationTypes = []NotificationType{NotificationTypeInvalidHandle, NotificationTypeRatingChange}

// NotificationPayload is the snapshot copied into a notification at enqueue time.
// Email is the routing key and never part of the payload.
type NotificationPayload struct {
	Handle string `json:"handle"`
	Rating *int   `json:"rating,omitempty"`
	Rank   string `json:"rank,omitempty"`
	Color  string `json:"color,omitempty"`
}

// Notification is one outbox record.
type Notification struct {
	ID          string              `json:"id"`
	Email       string              `json:"email"`
	Type        NotificationType    `json:"type"`
	State       NotificationState   `json:"state"`
	Data        NotificationPayload `json:"data"`
	Created     time.Time           `json:"created"`
	LastUpdated time.Time           `json:"lastUpdated"`
}

// NewNotification is the enqueue argument for the outbox.
type NewNotification struct {
	Email string
	Type  NotificationType
	Data  NotificationPayload
}
