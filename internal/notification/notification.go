package notification

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationChallengeCompleted NotificationType = "challenge_completed"
	NotificationChallengeFailed    NotificationType = "challenge_failed"
	NotificationPaymentReceived    NotificationType = "payment_received"
	NotificationCheckinReminder    NotificationType = "checkin_reminder"
)

type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"is_read"`
	Data      map[string]any   `json:"data,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

type DeviceToken struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type CreateNotificationRequest struct {
	UserID  uuid.UUID        `json:"user_id"`
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Data    map[string]any   `json:"data,omitempty"`
}

type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

type ListResponse struct {
	Notifications []*Notification `json:"notifications"`
	UnreadCount   int             `json:"unread_count"`
}
