package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/example/realtime-messaging/domain/messaging"
	"github.com/example/realtime-messaging/modules/calls"
	"github.com/example/realtime-messaging/modules/messaging"
	"github.com/example/realtime-messaging/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
)

// MessageService handles direct messages, read receipts and typing.
type MessageService interface {
	Send(ctx context.Context, senderID int64, req messaging.SendRequest) (*domain.Message, bool, error)
	MarkRead(ctx context.Context, readerID int64, messageIDs []int64, senderHint int64) (int, error)
	RelayTyping(senderID, receiverID int64, status string) (bool, error)
}

// CallService handles call signaling.
type CallService interface {
	RequestCall(ctx context.Context, initiatorID, receiverID int64, callType domain.CallType) (*domain.CallSession, bool, error)
	RespondToCall(ctx context.Context, responderID int64, callID, action string) (*domain.CallSession, error)
	EndCall(ctx context.Context, userID int64, callID string) (*domain.CallSession, error)
	RelaySignal(ctx context.Context, senderID int64, callID string, targetID int64, payload json.RawMessage) (bool, error)
}

// replier is the connection a frame arrived on.
type replier interface {
	Send(frame []byte) bool
}

// Router decodes inbound frames and dispatches them to the services.
type Router struct {
	messages MessageService
	calls    CallService
	logger   types.Logger
}

// NewRouter creates a frame router.
func NewRouter(messages MessageService, calls CallService, logger types.Logger) *Router {
	return &Router{messages: messages, calls: calls, logger: logger}
}

// Dispatch handles one inbound frame from userID. Every failure is answered
// with an error frame on the same connection; nothing here closes it.
func (r *Router) Dispatch(ctx context.Context, conn replier, userID int64, limiter *rateLimiter, data []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic while handling frame", "userID", userID, "panic", fmt.Sprint(rec))
			conn.Send(registry.EncodeError(CodeInternal, "internal error"))
		}
	}()

	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		conn.Send(registry.EncodeError(CodeInvalidFrame, "Invalid message format"))
		return
	}

	if frame.Type == FramePing {
		r.reply(conn, registry.EventPong, nil)
		return
	}

	if limiter != nil && !limiter.allow() {
		conn.Send(registry.EncodeError(CodeRateLimited, "Rate limit exceeded, please slow down"))
		return
	}

	switch frame.Type {
	case FrameMessage:
		r.handleMessage(ctx, conn, userID, frame)
	case FrameTyping:
		r.handleTyping(conn, userID, frame)
	case FrameReadReceipt:
		r.handleReadReceipt(ctx, conn, userID, frame)
	case FrameCallRequest:
		r.handleCallRequest(ctx, conn, userID, frame)
	case FrameCallResponse:
		r.handleCallResponse(ctx, conn, userID, frame)
	case FrameCallEnd:
		r.handleCallEnd(ctx, conn, userID, frame)
	case FrameSignal:
		r.handleSignal(ctx, conn, userID, frame)
	default:
		conn.Send(registry.EncodeError(CodeUnknownType, "Unknown message type: "+frame.Type))
	}
}

func (r *Router) handleMessage(ctx context.Context, conn replier, userID int64, frame InboundFrame) {
	msg, delivered, err := r.messages.Send(ctx, userID, messaging.SendRequest{
		ReceiverID:     frame.ReceiverID,
		Content:        frame.Content,
		AttachmentURL:  frame.AttachmentURL,
		AttachmentType: frame.AttachmentType,
	})
	if err != nil {
		r.sendError(conn, err)
		return
	}
	r.reply(conn, registry.EventMessageSent, messaging.MessageSent{Message: msg, Delivered: delivered})
}

func (r *Router) handleTyping(conn replier, userID int64, frame InboundFrame) {
	if _, err := r.messages.RelayTyping(userID, frame.ReceiverID, frame.Status); err != nil {
		r.sendError(conn, err)
	}
}

func (r *Router) handleReadReceipt(ctx context.Context, conn replier, userID int64, frame InboundFrame) {
	if _, err := r.messages.MarkRead(ctx, userID, frame.MessageIDs, frame.SenderID); err != nil {
		r.sendError(conn, err)
	}
}

func (r *Router) handleCallRequest(ctx context.Context, conn replier, userID int64, frame InboundFrame) {
	callType := frame.CallType
	if callType == "" {
		callType = frame.MediaType
	}

	session, delivered, err := r.calls.RequestCall(ctx, userID, frame.ReceiverID, domain.CallType(callType))
	if session != nil {
		r.reply(conn, registry.EventCallInitiated, calls.CallInitiated{
			CallID:     session.CallID,
			ReceiverID: session.ReceiverID,
			Type:       session.Type,
			Delivered:  delivered,
		})
	}
	if err != nil {
		r.sendError(conn, err)
	}
}

func (r *Router) handleCallResponse(ctx context.Context, conn replier, userID int64, frame InboundFrame) {
	if _, err := r.calls.RespondToCall(ctx, userID, frame.CallID, frame.Action); err != nil {
		r.sendError(conn, err)
	}
}

func (r *Router) handleCallEnd(ctx context.Context, conn replier, userID int64, frame InboundFrame) {
	if _, err := r.calls.EndCall(ctx, userID, frame.CallID); err != nil {
		r.sendError(conn, err)
	}
}

func (r *Router) handleSignal(ctx context.Context, conn replier, userID int64, frame InboundFrame) {
	if _, err := r.calls.RelaySignal(ctx, userID, frame.CallID, frame.RecipientID, frame.Signal); err != nil {
		r.sendError(conn, err)
	}
}

// reply sends an event to the originating connection only.
func (r *Router) reply(conn replier, eventType string, data any) {
	frame, err := registry.Encode(eventType, data)
	if err != nil {
		r.logger.Error("Failed to encode reply", "type", eventType, "error", err)
		return
	}
	conn.Send(frame)
}

func (r *Router) sendError(conn replier, err error) {
	code := errorCode(err)
	message := err.Error()
	if code == CodeInternal {
		r.logger.Error("Unclassified error while handling frame", "error", err)
		message = "internal error"
	}
	if errors.Is(err, domain.ErrPersistence) {
		message = "storage error, please retry"
	}
	conn.Send(registry.EncodeError(code, message))
}
