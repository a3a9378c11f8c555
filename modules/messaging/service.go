// Package messaging implements direct message delivery, read receipts and
// typing indicators on top of the connection registry.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	domain "github.com/example/realtime-messaging/domain/messaging"
	"github.com/example/realtime-messaging/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
)

// Service handles message, read-receipt and typing frames.
type Service struct {
	store    Store
	users    UserLookup
	pusher   Pusher
	notifier Notifier
	logger   types.Logger
}

// NewService creates a new messaging service.
func NewService(store Store, users UserLookup, pusher Pusher, notifier Notifier, logger types.Logger) *Service {
	return &Service{
		store:    store,
		users:    users,
		pusher:   pusher,
		notifier: notifier,
		logger:   logger,
	}
}

// Send validates, persists and delivers a direct message. The message is
// persisted before anything is pushed; delivered reports whether at least
// one receiver connection accepted it. An offline receiver is not an error.
func (s *Service) Send(ctx context.Context, senderID int64, req SendRequest) (*domain.Message, bool, error) {
	if err := ValidateSendRequest(senderID, req); err != nil {
		return nil, false, err
	}

	if _, err := s.users.GetUser(ctx, req.ReceiverID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: receiver %d", domain.ErrNotFound, req.ReceiverID)
		}
		return nil, false, fmt.Errorf("%w: receiver lookup: %v", domain.ErrPersistence, err)
	}

	msg := &domain.Message{
		SenderID:       senderID,
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		AttachmentURL:  req.AttachmentURL,
		AttachmentType: req.AttachmentType,
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		s.logger.Error("Failed to persist message", "senderID", senderID, "receiverID", req.ReceiverID, "error", err)
		return nil, false, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	delivered := s.pusher.SendToUser(req.ReceiverID, registry.EventNewMessage, msg)

	s.notifier.Notify(ctx, domain.Notification{
		UserID:      req.ReceiverID,
		Type:        domain.NotificationMessage,
		Title:       "New message",
		Body:        preview(msg.Content),
		ReferenceID: strconv.FormatInt(msg.ID, 10),
	})

	s.logger.Debug("Message sent", "messageID", msg.ID, "senderID", senderID, "receiverID", req.ReceiverID, "delivered", delivered)
	return msg, delivered, nil
}

// MarkRead marks messages addressed to readerID as read and pushes one
// read_receipt per original sender. Ids that do not exist or belong to another
// receiver are skipped. senderHint is used only when the store does not report
// a sender. It returns the number of messages acknowledged.
func (s *Service) MarkRead(ctx context.Context, readerID int64, messageIDs []int64, senderHint int64) (int, error) {
	if len(messageIDs) == 0 {
		return 0, ErrMessageIDsRequired
	}
	if len(messageIDs) > MaxReadReceiptBatch {
		return 0, ErrTooManyMessageIDs
	}

	var (
		senders  []int64
		bySender = make(map[int64][]int64)
		seen     = make(map[int64]bool, len(messageIDs))
		failures []error
		marked   int
	)

	for _, id := range messageIDs {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true

		msg, err := s.store.MarkMessageAsRead(ctx, id, readerID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			failures = append(failures, fmt.Errorf("message %d: %w", id, err))
			continue
		}

		sender := senderHint
		if msg != nil && msg.SenderID != 0 {
			sender = msg.SenderID
		}
		if sender == 0 {
			continue
		}
		if _, ok := bySender[sender]; !ok {
			senders = append(senders, sender)
		}
		bySender[sender] = append(bySender[sender], id)
		marked++
	}

	for _, sender := range senders {
		s.pusher.SendToUser(sender, registry.EventReadReceipt, ReadReceipt{
			ReadBy:     readerID,
			MessageIDs: bySender[sender],
		})
	}

	if len(failures) > 0 {
		s.logger.Error("Failed to mark messages as read", "readerID", readerID, "failed", len(failures))
		return marked, fmt.Errorf("%w: %d message(s) not marked read: %v", domain.ErrPersistence, len(failures), errors.Join(failures...))
	}
	return marked, nil
}

// RelayTyping forwards a typing status to the receiver. Nothing is persisted.
// It reports whether the receiver had a connection that accepted the event.
func (s *Service) RelayTyping(senderID, receiverID int64, status string) (bool, error) {
	if receiverID <= 0 {
		return false, ErrReceiverRequired
	}
	if status != TypingStarted && status != TypingStopped {
		return false, ErrTypingStatus
	}
	return s.pusher.SendToUser(receiverID, registry.EventTypingIndicator, TypingIndicator{
		SenderID: senderID,
		Status:   status,
	}), nil
}
