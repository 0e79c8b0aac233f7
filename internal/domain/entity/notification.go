package entity

import "time"

// NotificationType categorises a notification for routing and display.
type NotificationType string

const (
	NotificationTypeLike              NotificationType = "like"
	NotificationTypeComment           NotificationType = "comment"
	NotificationTypeApplication       NotificationType = "application"
	NotificationTypeApplicationStatus NotificationType = "application_status"
	NotificationTypeSystem            NotificationType = "system"
)

// Notification is the durable record a user sees in their in-app inbox.
// The backend owns it; only explicit mark-read and delete actions mutate it.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Type      NotificationType `json:"type"`
	Data      map[string]any   `json:"data,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationInput is the validated payload accepted by the dispatcher.
type NotificationInput struct {
	RecipientID string           `validate:"required"`
	Title       string           `validate:"required,max=200"`
	Body        string           `validate:"max=1000"`
	Type        NotificationType `validate:"required,oneof=like comment application application_status system"`
	Data        map[string]any
}
