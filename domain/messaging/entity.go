package messaging

import "time"

// User is a platform account that can hold realtime connections.
type User struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	Username    string    `json:"username" gorm:"uniqueIndex;not null"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Message is a persisted direct message between two users.
// Only the read flag changes after creation, and only from false to true.
type Message struct {
	ID             int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	SenderID       int64      `json:"senderId" gorm:"index;not null"`
	ReceiverID     int64      `json:"receiverId" gorm:"index;not null"`
	Content        string     `json:"content" gorm:"type:text;not null"`
	AttachmentURL  string     `json:"attachmentUrl,omitempty"`
	AttachmentType string     `json:"attachmentType,omitempty"`
	IsRead         bool       `json:"isRead" gorm:"not null;default:false"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// CallType is the media kind of a call.
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// Valid reports whether t is a supported call type.
func (t CallType) Valid() bool {
	return t == CallTypeAudio || t == CallTypeVideo
}

// CallStatus is the lifecycle state of a call session.
type CallStatus string

const (
	CallRequested CallStatus = "requested"
	CallOngoing   CallStatus = "ongoing"
	CallDeclined  CallStatus = "declined"
	CallEnded     CallStatus = "ended"
	CallMissed    CallStatus = "missed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallDeclined, CallEnded, CallMissed:
		return true
	}
	return false
}

// CallSession records one audio or video call between two users.
type CallSession struct {
	CallID      string     `json:"callId" gorm:"primaryKey;size:36"`
	InitiatorID int64      `json:"initiatorId" gorm:"index;not null"`
	ReceiverID  int64      `json:"receiverId" gorm:"index;not null"`
	Type        CallType   `json:"type" gorm:"size:8;not null"`
	Status      CallStatus `json:"status" gorm:"size:16;not null"`
	RequestedAt time.Time  `json:"requestedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	Duration    int        `json:"duration"` // seconds
}

// IsParticipant reports whether userID is the initiator or the receiver.
func (c *CallSession) IsParticipant(userID int64) bool {
	return userID == c.InitiatorID || userID == c.ReceiverID
}

// Peer returns the other participant, or 0 when userID is not part of the call.
func (c *CallSession) Peer(userID int64) int64 {
	switch userID {
	case c.InitiatorID:
		return c.ReceiverID
	case c.ReceiverID:
		return c.InitiatorID
	}
	return 0
}

// NotificationType classifies stored notifications.
type NotificationType string

const (
	NotificationMessage      NotificationType = "message"
	NotificationMissedCall   NotificationType = "missed_call"
	NotificationCallDeclined NotificationType = "call_declined"
)

// Notification is a persisted, user-facing notice.
type Notification struct {
	ID          int64            `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      int64            `json:"userId" gorm:"index;not null"`
	Type        NotificationType `json:"type" gorm:"size:32;not null"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	ReferenceID string           `json:"referenceId,omitempty"`
	IsRead      bool             `json:"isRead" gorm:"not null;default:false"`
	CreatedAt   time.Time        `json:"createdAt"`
}
