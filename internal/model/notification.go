package model

import (
	"encoding/json"
	"time"
)

// Notification types.
const (
	NotificationTournamentRegistration = "tournament_registration"
	NotificationNewFollower            = "new_follower"
)

// Notification is a durable, user-visible notification. Sent flips to true
// only after the push provider confirmed delivery.
type Notification struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Type             string          `json:"type"`
	Title            string          `json:"title"`
	Message          string          `json:"message"`
	Data             json.RawMessage `json:"data"`
	IsRead           bool            `json:"is_read"`
	Sent             bool            `json:"sent"`
	DeliveryAttempts int             `json:"delivery_attempts"`
	CreatedAt        time.Time       `json:"created_at"`
}

// NewNotification describes a notification to record and deliver.
type NewNotification struct {
	UserID  string
	Type    string
	Title   string
	Message string
	Data    map[string]any
}

// Device is an account's push registration.
type Device struct {
	UserID               string
	PlayerID             string
	NotificationsEnabled bool
}

// Deliverable reports whether a push may be attempted for this device.
func (d *Device) Deliverable() bool {
	return d != nil && d.PlayerID != "" && d.NotificationsEnabled
}

// NotificationFilter narrows a notification listing.
type NotificationFilter struct {
	Limit      int
	Offset     int
	UnreadOnly bool
	Type       string
}

// NotificationPage is one page of a user's notification history.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	TotalCount    int            `json:"total_count"`
	UnreadCount   int            `json:"unread_count"`
	Limit         int            `json:"limit"`
	Offset        int            `json:"offset"`
}
