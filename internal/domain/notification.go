package domain

// Notification is a user-facing notification record. Created server-side and
// delivered either in the REST history list or as a push event; the only
// client-side mutation is the Seen flag.
type Notification struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"` // RFC3339 timestamp as sent by the API
	Seen      bool   `json:"seen"`
}

// NotificationSettings holds per-account notification preferences.
type NotificationSettings struct {
	FillsNotifications bool `json:"fillsNotifications"`
}

// NotificationEventType discriminates push messages on the notification feed.
type NotificationEventType string

const (
	// EventNewNotification carries a Notification payload.
	EventNewNotification NotificationEventType = "newNotification"
)

// NotificationEvent is the envelope of a push message.
type NotificationEvent struct {
	EventType NotificationEventType `json:"eventType"`
	Payload   Notification          `json:"payload"`
}
