package calls

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/realtime-messaging/domain/messaging"
)

// Call responses
const (
	ActionAccept  = "accept"
	ActionDecline = "decline"
)

// Validation errors
var (
	ErrReceiverRequired = fmt.Errorf("%w: receiverId is required", domain.ErrValidation)
	ErrSelfCall         = fmt.Errorf("%w: cannot call yourself", domain.ErrValidation)
	ErrCallType         = fmt.Errorf("%w: call type must be audio or video", domain.ErrValidation)
	ErrCallIDRequired   = fmt.Errorf("%w: callId is required", domain.ErrValidation)
	ErrAction           = fmt.Errorf("%w: action must be accept or decline", domain.ErrValidation)
	ErrSignalRequired   = fmt.Errorf("%w: signal payload is required", domain.ErrValidation)
)

// Store persists call sessions.
type Store interface {
	CreateCallSession(ctx context.Context, call *domain.CallSession) error
	UpdateCallSession(ctx context.Context, call *domain.CallSession) error
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

// CallRequest is pushed to the receiver of a new call.
type CallRequest struct {
	CallID   string          `json:"callId"`
	CallerID int64           `json:"callerId"`
	Type     domain.CallType `json:"type"`
}

// CallInitiated acknowledges a new call to its initiator.
type CallInitiated struct {
	CallID     string          `json:"callId"`
	ReceiverID int64           `json:"receiverId"`
	Type       domain.CallType `json:"type"`
	Delivered  bool            `json:"delivered"`
}

// CallAccepted is pushed to both participants when the receiver accepts.
type CallAccepted struct {
	CallID     string `json:"callId"`
	AcceptedBy int64  `json:"acceptedBy"`
}

// CallDeclined is pushed to both participants when the receiver declines.
type CallDeclined struct {
	CallID     string `json:"callId"`
	DeclinedBy int64  `json:"declinedBy"`
}

// CallEnded is pushed to both participants when either side hangs up.
type CallEnded struct {
	CallID   string `json:"callId"`
	EndedBy  int64  `json:"endedBy"`
	Duration int    `json:"duration"`
}

// CallMissed is pushed to both participants when an unanswered call times out.
type CallMissed struct {
	CallID     string          `json:"callId"`
	CallerID   int64           `json:"callerId"`
	ReceiverID int64           `json:"receiverId"`
	Type       domain.CallType `json:"type"`
}

// Signal carries an opaque negotiation payload between call participants.
type Signal struct {
	CallID   string          `json:"callId"`
	SenderID int64           `json:"senderId"`
	Signal   json.RawMessage `json:"signal"`
}
