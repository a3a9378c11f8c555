package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/realtime-messaging/domain/messaging"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a record does not exist or is not visible to the caller.
var ErrNotFound = errors.New("record not found")

// Repository persists users, messages, call sessions and notifications.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a new repository on db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Migrate creates or updates the schema.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&domain.User{},
		&domain.Message{},
		&domain.CallSession{},
		&domain.Notification{},
	)
}

// CreateUser saves a new user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// CountUsers returns the number of stored users.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

// CreateMessage saves a new message and fills in its id and timestamp.
func (r *Repository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now()
	}
	msg.IsRead = false
	msg.ReadAt = nil
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// MarkMessageAsRead sets the read flag on a message addressed to readerID.
// Marking an already-read message returns it unchanged. Messages that do not
// exist or belong to another receiver yield ErrNotFound.
func (r *Repository) MarkMessageAsRead(ctx context.Context, messageID, readerID int64) (*domain.Message, error) {
	db := r.db.WithContext(ctx)

	var msg domain.Message
	if err := db.First(&msg, "id = ? AND receiver_id = ?", messageID, readerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find message: %w", err)
	}
	if msg.IsRead {
		return &msg, nil
	}

	readAt := r.now()
	result := db.Model(&domain.Message{}).
		Where("id = ? AND is_read = ?", messageID, false).
		Updates(map[string]any{"is_read": true, "read_at": readAt})
	if err := result.Error; err != nil {
		return nil, fmt.Errorf("failed to mark message as read: %w", err)
	}

	msg.IsRead = true
	if result.RowsAffected > 0 {
		msg.ReadAt = &readAt
	}
	return &msg, nil
}

// ListConversation returns messages exchanged between two users, oldest first.
func (r *Repository) ListConversation(ctx context.Context, userA, userB int64, limit int) ([]*domain.Message, error) {
	var msgs []*domain.Message
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", userA, userB, userB, userA).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SaveCallSession inserts or updates a call session by call id.
func (r *Repository) SaveCallSession(ctx context.Context, call *domain.CallSession) error {
	if err := r.db.WithContext(ctx).Save(call).Error; err != nil {
		return fmt.Errorf("failed to save call session: %w", err)
	}
	return nil
}

// GetCallSession retrieves a call session by id.
func (r *Repository) GetCallSession(ctx context.Context, callID string) (*domain.CallSession, error) {
	var call domain.CallSession
	if err := r.db.WithContext(ctx).First(&call, "call_id = ?", callID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find call session: %w", err)
	}
	return &call, nil
}

// CreateNotification saves a notification.
func (r *Repository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListUnreadNotifications returns up to limit unread notifications for a user, newest first.
func (r *Repository) ListUnreadNotifications(ctx context.Context, userID int64, limit int) ([]*domain.Notification, error) {
	var out []*domain.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", userID, false).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}
