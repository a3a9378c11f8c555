package gateway

import (
	"context"
	"time"

	domain "github.com/example/realtime-messaging/domain/messaging"
	"github.com/example/realtime-messaging/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// eventNotifier publishes notification requests on the EventBus. Publishing
// failures are logged and never reach the caller.
type eventNotifier struct {
	bus    func() mono.EventBus
	logger types.Logger
}

func (n *eventNotifier) Notify(_ context.Context, note domain.Notification) {
	bus := n.bus()
	if bus == nil {
		n.logger.Warn("EventBus not set, dropping notification", "userID", note.UserID, "type", note.Type)
		return
	}

	event := events.NotificationRequestedEvent{
		UserID:      note.UserID,
		Type:        string(note.Type),
		Title:       note.Title,
		Body:        note.Body,
		ReferenceID: note.ReferenceID,
		Timestamp:   time.Now().UTC(),
	}
	if err := events.NotificationRequestedV1.Publish(bus, event, nil); err != nil {
		n.logger.Warn("Failed to publish NotificationRequested event", "userID", note.UserID, "error", err)
	}
}
