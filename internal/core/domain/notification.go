package domain

// NotificationLevel is the only user-visible channel for failures.
type NotificationLevel string

const (
	NotifySilent   NotificationLevel = "silent"
	NotifyInfo     NotificationLevel = "info"
	NotifyWarning  NotificationLevel = "warning"
	NotifyError    NotificationLevel = "error"
	NotifyCritical NotificationLevel = "critical"
)

// Notification is handed to the notification-display collaborator.
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Message string            `json:"message"`
	ErrorID string            `json:"errorId,omitempty"`
}
