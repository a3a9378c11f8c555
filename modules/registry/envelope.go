package registry

import (
	"encoding/json"
	"time"
)

// Outbound event types.
const (
	EventNewMessage       = "new_message"
	EventMessageSent      = "message_sent"
	EventTypingIndicator  = "typing_indicator"
	EventReadReceipt      = "read_receipt"
	EventCallRequest      = "call_request"
	EventCallInitiated    = "call_initiated"
	EventCallAccepted     = "call_accepted"
	EventCallDeclined     = "call_declined"
	EventCallEnded        = "call_ended"
	EventCallMissed       = "call_missed"
	EventSignal           = "signal"
	EventStatusUpdate     = "status_update"
	EventConnectionStatus = "connection_status"
	EventNotification     = "notification"
	EventNotifications    = "notifications"
	EventPong             = "pong"
	EventError            = "error"
)

// Envelope is the JSON frame written to clients.
type Envelope struct {
	Type      string     `json:"type"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorBody describes a failed inbound request. Persistent is false for every
// in-protocol error: the connection stays usable.
type ErrorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Persistent bool   `json:"persistent"`
}

// StatusUpdate is the payload of a status_update event.
type StatusUpdate struct {
	UserID int64 `json:"userId"`
	Online bool  `json:"online"`
}

// Encode builds an outbound frame for eventType carrying data.
func Encode(eventType string, data any) ([]byte, error) {
	return json.Marshal(Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// EncodeError builds an outbound error frame.
func EncodeError(code, message string) []byte {
	frame, err := json.Marshal(Envelope{
		Type:      EventError,
		Error:     &ErrorBody{Code: code, Message: message},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		// Only strings are marshaled, so this cannot fail in practice.
		return []byte(`{"type":"error","error":{"code":"internal_error","message":"encoding failed","persistent":false}}`)
	}
	return frame
}
