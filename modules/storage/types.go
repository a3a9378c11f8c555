package storage

import domain "github.com/example/realtime-messaging/domain/messaging"

// Service names registered by the storage module.
// The framework prefixes them with "services.storage.".
const (
	ServiceGetUser           = "get-user"
	ServiceCreateMessage     = "create-message"
	ServiceMarkMessageRead   = "mark-message-read"
	ServiceSaveCallSession   = "save-call-session"
	ServiceCreateNotice      = "create-notification"
	ServiceListNotifications = "list-notifications"
)

// GetUserRequest is the request for getting a user.
type GetUserRequest struct {
	UserID int64 `json:"user_id"`
}

// GetUserResponse is the response for getting a user.
type GetUserResponse struct {
	User  *domain.User `json:"user,omitempty"`
	Found bool         `json:"found"`
}

// CreateMessageRequest carries a message to persist.
type CreateMessageRequest struct {
	Message *domain.Message `json:"message"`
}

// CreateMessageResponse returns the stored message with its id.
type CreateMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// MarkMessageReadRequest marks one message read on behalf of its receiver.
type MarkMessageReadRequest struct {
	MessageID int64 `json:"message_id"`
	ReaderID  int64 `json:"reader_id"`
}

// MarkMessageReadResponse returns the message after the update.
type MarkMessageReadResponse struct {
	Message *domain.Message `json:"message,omitempty"`
	Found   bool            `json:"found"`
}

// SaveCallSessionRequest upserts a call session.
type SaveCallSessionRequest struct {
	Session *domain.CallSession `json:"session"`
}

// SaveCallSessionResponse is empty on success.
type SaveCallSessionResponse struct{}

// CreateNotificationRequest carries a notification to persist.
type CreateNotificationRequest struct {
	Notification *domain.Notification `json:"notification"`
}

// CreateNotificationResponse returns the stored notification.
type CreateNotificationResponse struct {
	Notification *domain.Notification `json:"notification"`
}

// ListNotificationsRequest lists unread notifications of a user.
type ListNotificationsRequest struct {
	UserID int64 `json:"user_id"`
	Limit  int   `json:"limit"`
}

// ListNotificationsResponse holds unread notifications, newest first.
type ListNotificationsResponse struct {
	Notifications []*domain.Notification `json:"notifications"`
}
