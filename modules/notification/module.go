// Package notification persists notification requests published on the
// EventBus and streams them to clients connected to the notification feed.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/example/realtime-messaging/domain/messaging"
	"github.com/example/realtime-messaging/events"
	"github.com/example/realtime-messaging/modules/gateway"
	"github.com/example/realtime-messaging/modules/registry"
	"github.com/example/realtime-messaging/modules/storage"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

const (
	backlogLimit = 50
	storeTimeout = 5 * time.Second
)

// Store is the persistence the notification module needs.
type Store interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListUnreadNotifications(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error)
}

// Module is an EventConsumerModule that stores notifications and pushes them
// to feed connections.
type Module struct {
	store      Store
	feeds      *registry.Registry
	clientOpts gateway.ClientOptions
	logger     types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.EventConsumerModule = (*Module)(nil)
var _ mono.DependentModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new notification module.
func NewModule(clientOpts gateway.ClientOptions, moduleLogger types.Logger) *Module {
	return &Module{
		feeds:      registry.New(moduleLogger),
		clientOpts: clientOpts,
		logger:     moduleLogger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "notification"
}

// Dependencies returns the list of module dependencies.
func (m *Module) Dependencies() []string {
	return []string{"storage"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *Module) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	if dependency == "storage" {
		m.store = storage.NewAdapter(container)
	}
}

// Start initializes the module.
func (m *Module) Start(_ context.Context) error {
	if m.store == nil {
		return fmt.Errorf("storage dependency not set")
	}
	m.logger.Info("Notification module started")
	return nil
}

// Stop closes every feed connection.
func (m *Module) Stop(_ context.Context) error {
	count := m.feeds.TotalConnections()
	m.feeds.CloseAll()
	m.logger.Info("Notification module stopped", "feedConnections", count)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"feed_users":       m.feeds.UserCount(),
			"feed_connections": m.feeds.TotalConnections(),
		},
	}
}

// RegisterEventConsumers registers event handlers.
func (m *Module) RegisterEventConsumers(eventRegistry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		eventRegistry, events.NotificationRequestedV1, m.handleNotificationRequested, m,
	); err != nil {
		return fmt.Errorf("failed to register NotificationRequested consumer: %w", err)
	}

	m.logger.Info("Registered event consumers", "events", "NotificationRequested")
	return nil
}

func (m *Module) handleNotificationRequested(ctx context.Context, event events.NotificationRequestedEvent, _ *mono.Msg) error {
	n := &domain.Notification{
		UserID:      event.UserID,
		Type:        domain.NotificationType(event.Type),
		Title:       event.Title,
		Body:        event.Body,
		ReferenceID: event.ReferenceID,
		CreatedAt:   event.Timestamp,
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := m.store.CreateNotification(storeCtx, n); err != nil {
		// Notifications are best effort; the realtime action already happened.
		m.logger.Error("Failed to store notification", "userID", event.UserID, "type", event.Type, "error", err)
		return nil
	}

	delivered := m.feeds.SendToUser(n.UserID, registry.EventNotification, n)
	m.logger.Debug("Notification stored", "userID", n.UserID, "type", n.Type, "id", n.ID, "delivered", delivered)
	return nil
}

// ServeFeed runs one authenticated connection on the notification feed path.
func (m *Module) ServeFeed(userID int64, conn *websocket.Conn) {
	client := gateway.NewClient(conn, userID, m.clientOpts, m.logger)

	m.feeds.Add(userID, client)
	defer m.feeds.Remove(userID, client)

	m.sendBacklog(context.Background(), userID, client)

	client.Run(func(frame []byte) {
		handleFeedFrame(client, frame)
	})
}

// sendBacklog sends the unread notifications of userID, newest first.
func (m *Module) sendBacklog(ctx context.Context, userID int64, conn registry.Connection) {
	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	unread, err := m.store.ListUnreadNotifications(storeCtx, userID, backlogLimit)
	if err != nil {
		m.logger.Error("Failed to load notification backlog", "userID", userID, "error", err)
		conn.Send(registry.EncodeError(gateway.CodeStorage, "storage error, please retry"))
		return
	}
	if unread == nil {
		unread = []*domain.Notification{}
	}

	frame, err := registry.Encode(registry.EventNotifications, unread)
	if err != nil {
		m.logger.Error("Failed to encode notification backlog", "userID", userID, "error", err)
		return
	}
	conn.Send(frame)
}

// handleFeedFrame answers the only frame a feed client may send: ping.
func handleFeedFrame(conn registry.Connection, data []byte) {
	var frame struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		conn.Send(registry.EncodeError(gateway.CodeInvalidFrame, "Invalid message format"))
		return
	}
	if frame.Type != gateway.FramePing {
		conn.Send(registry.EncodeError(gateway.CodeUnknownType, "Unknown message type: "+frame.Type))
		return
	}
	if pong, err := registry.Encode(registry.EventPong, nil); err == nil {
		conn.Send(pong)
	}
}
