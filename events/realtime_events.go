package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// NotificationRequestedEvent is emitted when a realtime action should leave a
// stored notification for a user (new message, missed or declined call).
type NotificationRequestedEvent struct {
	UserID      int64     `json:"user_id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NotificationRequestedV1 is the event definition for notification requests.
var (
	NotificationRequestedV1 = helper.EventDefinition[NotificationRequestedEvent](
		"realtime",
		"NotificationRequested",
		"v1",
	)
)
