// internal/models/notification.go
package models

const (
	NotificationSent     = "sent"
	NotificationFailed   = "failed"
	NotificationDisabled = "disabled"
)

// NotificationResult is returned by the email capability.
type NotificationResult struct {
	NotificationID string `json:"notificationId"`
	RecipientID    string `json:"recipientId"`
	Channel        string `json:"channel"`
	Status         string `json:"status"`
	MessageID      string `json:"messageId,omitempty"`
	SMSSent        bool   `json:"smsSent,omitempty"`
	SentAt         string `json:"sentAt"`
}
