// Package storage is the persistence collaborator of the realtime service.
// It owns the SQLite database and exposes it to other modules as
// request-reply services.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/example/realtime-messaging/domain/messaging"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultNotificationLimit = 50

// Module provides storage services via GORM + SQLite.
type Module struct {
	db      *gorm.DB
	repo    *Repository
	dbPath  string
	dbDebug bool
	logger  types.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*Module)(nil)
var _ mono.ServiceProviderModule = (*Module)(nil)
var _ mono.HealthCheckableModule = (*Module)(nil)

// NewModule creates a new storage module.
func NewModule(dbPath string, dbDebug bool, moduleLogger types.Logger) *Module {
	return &Module{
		dbPath:  dbPath,
		dbDebug: dbDebug,
		logger:  moduleLogger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "storage"
}

// Health performs a health check on the database.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "database not initialized",
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("failed to get sql.DB: %v", err),
		}
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"driver": "sqlite",
			"path":   m.dbPath,
		},
	}
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceGetUser, json.Unmarshal, json.Marshal, m.getUser,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceGetUser, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateMessage, json.Unmarshal, json.Marshal, m.createMessage,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateMessage, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceMarkMessageRead, json.Unmarshal, json.Marshal, m.markMessageRead,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceMarkMessageRead, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceSaveCallSession, json.Unmarshal, json.Marshal, m.saveCallSession,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceSaveCallSession, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCreateNotice, json.Unmarshal, json.Marshal, m.createNotification,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCreateNotice, err)
	}

	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceListNotifications, json.Unmarshal, json.Marshal, m.listNotifications,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceListNotifications, err)
	}

	m.logger.Info("Registered storage services",
		"services", []string{
			ServiceGetUser, ServiceCreateMessage, ServiceMarkMessageRead,
			ServiceSaveCallSession, ServiceCreateNotice, ServiceListNotifications,
		})
	return nil
}

func (m *Module) getUser(ctx context.Context, req GetUserRequest, _ *mono.Msg) (GetUserResponse, error) {
	user, err := m.repo.GetUser(ctx, req.UserID)
	if errors.Is(err, ErrNotFound) {
		return GetUserResponse{Found: false}, nil
	}
	if err != nil {
		return GetUserResponse{}, err
	}
	return GetUserResponse{User: user, Found: true}, nil
}

func (m *Module) createMessage(ctx context.Context, req CreateMessageRequest, _ *mono.Msg) (CreateMessageResponse, error) {
	if req.Message == nil {
		return CreateMessageResponse{}, errors.New("message is required")
	}
	if err := m.repo.CreateMessage(ctx, req.Message); err != nil {
		return CreateMessageResponse{}, err
	}
	return CreateMessageResponse{Message: req.Message}, nil
}

func (m *Module) markMessageRead(ctx context.Context, req MarkMessageReadRequest, _ *mono.Msg) (MarkMessageReadResponse, error) {
	msg, err := m.repo.MarkMessageAsRead(ctx, req.MessageID, req.ReaderID)
	if errors.Is(err, ErrNotFound) {
		return MarkMessageReadResponse{Found: false}, nil
	}
	if err != nil {
		return MarkMessageReadResponse{}, err
	}
	return MarkMessageReadResponse{Message: msg, Found: true}, nil
}

func (m *Module) saveCallSession(ctx context.Context, req SaveCallSessionRequest, _ *mono.Msg) (SaveCallSessionResponse, error) {
	if req.Session == nil {
		return SaveCallSessionResponse{}, errors.New("session is required")
	}
	return SaveCallSessionResponse{}, m.repo.SaveCallSession(ctx, req.Session)
}

func (m *Module) createNotification(ctx context.Context, req CreateNotificationRequest, _ *mono.Msg) (CreateNotificationResponse, error) {
	if req.Notification == nil {
		return CreateNotificationResponse{}, errors.New("notification is required")
	}
	if err := m.repo.CreateNotification(ctx, req.Notification); err != nil {
		return CreateNotificationResponse{}, err
	}
	return CreateNotificationResponse{Notification: req.Notification}, nil
}

func (m *Module) listNotifications(ctx context.Context, req ListNotificationsRequest, _ *mono.Msg) (ListNotificationsResponse, error) {
	limit := req.Limit
	if limit <= 0 || limit > defaultNotificationLimit {
		limit = defaultNotificationLimit
	}
	list, err := m.repo.ListUnreadNotifications(ctx, req.UserID, limit)
	if err != nil {
		return ListNotificationsResponse{}, err
	}
	return ListNotificationsResponse{Notifications: list}, nil
}

// Start opens the database, runs migrations and seeds demo users.
func (m *Module) Start(ctx context.Context) error {
	m.logger.Info("Connecting to SQLite database", "path", m.dbPath)

	logLevel := logger.Silent
	if m.dbDebug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(m.dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	m.db = db
	m.repo = NewRepository(db)

	if err := m.repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := m.seedDemoUsers(ctx); err != nil {
		return err
	}

	m.logger.Info("Storage module started")
	return nil
}

// seedDemoUsers inserts a few accounts into an empty database so the
// realtime endpoints can be exercised locally.
func (m *Module) seedDemoUsers(ctx context.Context) error {
	count, err := m.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for _, u := range []domain.User{
		{ID: 1, Username: "alice", DisplayName: "Alice"},
		{ID: 2, Username: "bob", DisplayName: "Bob"},
		{ID: 3, Username: "carol", DisplayName: "Carol"},
	} {
		user := u
		if err := m.repo.CreateUser(ctx, &user); err != nil {
			return err
		}
	}
	m.logger.Info("Seeded demo users", "count", 3)
	return nil
}

// Stop closes the database connection.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	m.logger.Info("Database connection closed")
	return nil
}
