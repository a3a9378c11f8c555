package gateway

import (
	"encoding/json"
	"errors"

	domain "github.com/example/realtime-messaging/domain/messaging"
)

// Inbound frame types
const (
	FrameMessage      = "message"
	FrameTyping       = "typing"
	FrameReadReceipt  = "read_receipt"
	FrameCallRequest  = "call_request"
	FrameCallResponse = "call_response"
	FrameCallEnd      = "call_end"
	FrameSignal       = "signal"
	FramePing         = "ping"
)

// Error codes sent in error frames
const (
	CodeInvalidFrame = "invalid_frame"
	CodeUnknownType  = "unknown_type"
	CodeValidation   = "validation_error"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeStorage      = "storage_error"
	CodeRateLimited  = "rate_limited"
	CodeInternal     = "internal_error"
)

// InboundFrame is the flat JSON object clients send. Only the fields of the
// given Type are meaningful.
type InboundFrame struct {
	Type string `json:"type"`

	// message, typing, call_request
	ReceiverID     int64  `json:"receiverId"`
	Content        string `json:"content"`
	AttachmentURL  string `json:"attachmentUrl"`
	AttachmentType string `json:"attachmentType"`
	Status         string `json:"status"`

	// read_receipt
	MessageIDs []int64 `json:"messageIds"`
	SenderID   int64   `json:"senderId"`

	// call_request; "type" is taken by the frame discriminator
	CallType  string `json:"callType"`
	MediaType string `json:"mediaType"`

	// call_response, call_end, signal
	CallID      string          `json:"callId"`
	Action      string          `json:"action"`
	RecipientID int64           `json:"recipientId"`
	Signal      json.RawMessage `json:"signal"`
}

// ConnectionStatus is sent to a connection right after it is registered.
type ConnectionStatus struct {
	UserID       int64   `json:"userId"`
	ConnectionID string  `json:"connectionId"`
	Connected    bool    `json:"connected"`
	OnlineUsers  []int64 `json:"onlineUsers"`
}

// errorCode maps a service error to its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return CodeValidation
	case errors.Is(err, domain.ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrConflict):
		return CodeConflict
	case errors.Is(err, domain.ErrPersistence):
		return CodeStorage
	default:
		return CodeInternal
	}
}
