package storage

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/realtime-messaging/domain/messaging"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Port is the storage API consumed by the realtime modules.
type Port interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	CreateMessage(ctx context.Context, msg *domain.Message) error
	MarkMessageAsRead(ctx context.Context, messageID, readerID int64) (*domain.Message, error)
	CreateCallSession(ctx context.Context, call *domain.CallSession) error
	UpdateCallSession(ctx context.Context, call *domain.CallSession) error
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListUnreadNotifications(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error)
}

// Adapter implements Port over the storage module's service container.
type Adapter struct {
	container mono.ServiceContainer
}

// NewAdapter creates an adapter for the storage services.
// container is received via SetDependencyServiceContainer.
func NewAdapter(container mono.ServiceContainer) Port {
	if container == nil {
		panic("storage adapter requires non-nil ServiceContainer")
	}
	return &Adapter{container: container}
}

func (a *Adapter) call(ctx context.Context, service string, req, resp any) error {
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return fmt.Errorf("%s service call failed: %w", service, err)
	}
	return nil
}

// GetUser returns the user or domain.ErrNotFound.
func (a *Adapter) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	req := GetUserRequest{UserID: userID}
	var resp GetUserResponse
	if err := a.call(ctx, ServiceGetUser, &req, &resp); err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, userID)
	}
	return resp.User, nil
}

// CreateMessage persists msg and copies back the assigned id and timestamp.
func (a *Adapter) CreateMessage(ctx context.Context, msg *domain.Message) error {
	req := CreateMessageRequest{Message: msg}
	var resp CreateMessageResponse
	if err := a.call(ctx, ServiceCreateMessage, &req, &resp); err != nil {
		return err
	}
	if resp.Message != nil {
		*msg = *resp.Message
	}
	return nil
}

// MarkMessageAsRead returns the updated message or domain.ErrNotFound.
func (a *Adapter) MarkMessageAsRead(ctx context.Context, messageID, readerID int64) (*domain.Message, error) {
	req := MarkMessageReadRequest{MessageID: messageID, ReaderID: readerID}
	var resp MarkMessageReadResponse
	if err := a.call(ctx, ServiceMarkMessageRead, &req, &resp); err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, fmt.Errorf("%w: message %d", domain.ErrNotFound, messageID)
	}
	return resp.Message, nil
}

// CreateCallSession persists a newly requested call.
func (a *Adapter) CreateCallSession(ctx context.Context, call *domain.CallSession) error {
	return a.saveCallSession(ctx, call)
}

// UpdateCallSession persists a call state transition.
func (a *Adapter) UpdateCallSession(ctx context.Context, call *domain.CallSession) error {
	return a.saveCallSession(ctx, call)
}

func (a *Adapter) saveCallSession(ctx context.Context, call *domain.CallSession) error {
	snapshot := *call
	req := SaveCallSessionRequest{Session: &snapshot}
	var resp SaveCallSessionResponse
	return a.call(ctx, ServiceSaveCallSession, &req, &resp)
}

// CreateNotification persists n and copies back its id.
func (a *Adapter) CreateNotification(ctx context.Context, n *domain.Notification) error {
	req := CreateNotificationRequest{Notification: n}
	var resp CreateNotificationResponse
	if err := a.call(ctx, ServiceCreateNotice, &req, &resp); err != nil {
		return err
	}
	if resp.Notification != nil {
		*n = *resp.Notification
	}
	return nil
}

// ListUnreadNotifications returns up to limit unread notifications, newest first.
func (a *Adapter) ListUnreadNotifications(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error) {
	req := ListNotificationsRequest{UserID: userID, Limit: limit}
	var resp ListNotificationsResponse
	if err := a.call(ctx, ServiceListNotifications, &req, &resp); err != nil {
		return nil, err
	}
	return resp.Notifications, nil
}
