package messaging

import (
	"context"
	"fmt"
	"unicode/utf8"

	domain "github.com/example/realtime-messaging/domain/messaging"
)

// Validation limits
const (
	MaxMessageLength    = 5000
	MaxAttachmentURL    = 2048
	MaxReadReceiptBatch = 500
	notificationPreview = 100
)

// Typing statuses
const (
	TypingStarted = "typing"
	TypingStopped = "stopped"
)

// Validation errors
var (
	ErrReceiverRequired   = fmt.Errorf("%w: receiverId is required", domain.ErrValidation)
	ErrSelfMessage        = fmt.Errorf("%w: cannot message yourself", domain.ErrValidation)
	ErrMessageEmpty       = fmt.Errorf("%w: message content cannot be empty", domain.ErrValidation)
	ErrMessageTooLong     = fmt.Errorf("%w: message exceeds maximum length", domain.ErrValidation)
	ErrMessageInvalid     = fmt.Errorf("%w: message contains invalid characters", domain.ErrValidation)
	ErrAttachmentInvalid  = fmt.Errorf("%w: attachment requires a url and a type", domain.ErrValidation)
	ErrMessageIDsRequired = fmt.Errorf("%w: messageIds must not be empty", domain.ErrValidation)
	ErrTooManyMessageIDs  = fmt.Errorf("%w: too many messageIds", domain.ErrValidation)
	ErrTypingStatus       = fmt.Errorf("%w: status must be typing or stopped", domain.ErrValidation)
)

// Store persists messages.
type Store interface {
	CreateMessage(ctx context.Context, msg *domain.Message) error
	MarkMessageAsRead(ctx context.Context, messageID, readerID int64) (*domain.Message, error)
}

// UserLookup resolves user ids. Unknown users yield domain.ErrNotFound.
type UserLookup interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
}

// Pusher delivers an event to every open connection of a user.
type Pusher interface {
	SendToUser(userID int64, eventType string, data any) bool
}

// Notifier records a notification without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
}

// SendRequest is an outbound direct message.
type SendRequest struct {
	ReceiverID     int64
	Content        string
	AttachmentURL  string
	AttachmentType string
}

// MessageSent acknowledges a persisted message to its sender.
type MessageSent struct {
	Message   *domain.Message `json:"message"`
	Delivered bool            `json:"delivered"`
}

// TypingIndicator is pushed to the receiver of a typing event.
type TypingIndicator struct {
	SenderID int64  `json:"senderId"`
	Status   string `json:"status"`
}

// ReadReceipt tells a sender which of their messages were read.
type ReadReceipt struct {
	ReadBy     int64   `json:"readBy"`
	MessageIDs []int64 `json:"messageIds"`
}

// ValidateMessage validates message content.
func ValidateMessage(content string) error {
	if content == "" {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if !utf8.ValidString(content) {
		return ErrMessageInvalid
	}
	return nil
}

// ValidateSendRequest validates a direct message from senderID.
func ValidateSendRequest(senderID int64, req SendRequest) error {
	if req.ReceiverID <= 0 {
		return ErrReceiverRequired
	}
	if req.ReceiverID == senderID {
		return ErrSelfMessage
	}
	if err := ValidateMessage(req.Content); err != nil {
		return err
	}
	if (req.AttachmentURL == "") != (req.AttachmentType == "") || len(req.AttachmentURL) > MaxAttachmentURL {
		return ErrAttachmentInvalid
	}
	return nil
}

// preview shortens content for notification bodies.
func preview(content string) string {
	if utf8.RuneCountInString(content) <= notificationPreview {
		return content
	}
	runes := []rune(content)
	return string(runes[:notificationPreview]) + "..."
}
