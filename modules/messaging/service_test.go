package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	domain "github.com/example/realtime-messaging/domain/messaging"
	"github.com/example/realtime-messaging/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

// memoryStore is an in-memory Store and UserLookup.
type memoryStore struct {
	mu        sync.Mutex
	users     map[int64]bool
	messages  map[int64]*domain.Message
	nextID    int64
	createErr error
	markErr   map[int64]error
}

func newMemoryStore(userIDs ...int64) *memoryStore {
	s := &memoryStore{
		users:    make(map[int64]bool),
		messages: make(map[int64]*domain.Message),
		markErr:  make(map[int64]error),
	}
	for _, id := range userIDs {
		s.users[id] = true
	}
	return s
}

func (s *memoryStore) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.users[id] {
		return nil, domain.ErrNotFound
	}
	return &domain.User{ID: id}, nil
}

func (s *memoryStore) CreateMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	msg.ID = s.nextID
	stored := *msg
	s.messages[msg.ID] = &stored
	return nil
}

func (s *memoryStore) MarkMessageAsRead(_ context.Context, id, readerID int64) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.markErr[id]; err != nil {
		return nil, err
	}
	msg, ok := s.messages[id]
	if !ok || msg.ReceiverID != readerID {
		return nil, domain.ErrNotFound
	}
	msg.IsRead = true
	out := *msg
	return &out, nil
}

// pushed is one event recorded by recordingPusher.
type pushed struct {
	userID    int64
	eventType string
	data      any
}

type recordingPusher struct {
	mu     sync.Mutex
	online map[int64]bool
	events []pushed
}

func newRecordingPusher(online ...int64) *recordingPusher {
	p := &recordingPusher{online: make(map[int64]bool)}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *recordingPusher) SendToUser(userID int64, eventType string, data any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, pushed{userID, eventType, data})
	return p.online[userID]
}

func (p *recordingPusher) ofType(eventType string) []pushed {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []pushed
	for _, e := range p.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func newTestService(store *memoryStore, pusher *recordingPusher) (*Service, *recordingNotifier) {
	notifier := &recordingNotifier{}
	return NewService(store, store, pusher, notifier, &mockLogger{}), notifier
}

func TestService_Send(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		req           SendRequest
		online        bool
		wantErr       error
		wantDelivered bool
	}{
		{
			name:          "receiver online",
			req:           SendRequest{ReceiverID: 2, Content: "hello"},
			online:        true,
			wantDelivered: true,
		},
		{
			name:          "receiver offline is still persisted",
			req:           SendRequest{ReceiverID: 2, Content: "hello"},
			online:        false,
			wantDelivered: false,
		},
		{
			name:          "with attachment",
			req:           SendRequest{ReceiverID: 2, Content: "see file", AttachmentURL: "https://cdn/x.png", AttachmentType: "image"},
			online:        true,
			wantDelivered: true,
		},
		{
			name:    "missing receiver",
			req:     SendRequest{Content: "hello"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "empty content",
			req:     SendRequest{ReceiverID: 2},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "content too long",
			req:     SendRequest{ReceiverID: 2, Content: strings.Repeat("a", MaxMessageLength+1)},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "attachment without type",
			req:     SendRequest{ReceiverID: 2, Content: "x", AttachmentURL: "https://cdn/x.png"},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "unknown receiver",
			req:     SendRequest{ReceiverID: 99, Content: "hello"},
			wantErr: domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore(1, 2)
			pusher := newRecordingPusher()
			if tt.online {
				pusher.online[2] = true
			}
			svc, notifier := newTestService(store, pusher)

			msg, delivered, err := svc.Send(ctx, 1, tt.req)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Send() error = %v, want %v", err, tt.wantErr)
				}
				if len(store.messages) != 0 {
					t.Error("Send() persisted a rejected message")
				}
				if len(pusher.events) != 0 {
					t.Error("Send() pushed events for a rejected message")
				}
				return
			}

			if err != nil {
				t.Fatalf("Send() unexpected error: %v", err)
			}
			if msg.ID == 0 {
				t.Error("Send() returned message without id")
			}
			if _, ok := store.messages[msg.ID]; !ok {
				t.Error("Send() did not persist the message")
			}
			if delivered != tt.wantDelivered {
				t.Errorf("Send() delivered = %v, want %v", delivered, tt.wantDelivered)
			}

			events := pusher.ofType(registry.EventNewMessage)
			if len(events) != 1 || events[0].userID != 2 {
				t.Errorf("new_message events = %+v, want one for user 2", events)
			}
			if len(notifier.notes) != 1 || notifier.notes[0].Type != domain.NotificationMessage {
				t.Errorf("notifications = %+v, want one message notification", notifier.notes)
			}
		})
	}
}

func TestService_SendPersistenceFailure(t *testing.T) {
	store := newMemoryStore(1, 2)
	store.createErr = errors.New("disk full")
	pusher := newRecordingPusher(2)
	svc, notifier := newTestService(store, pusher)

	_, _, err := svc.Send(context.Background(), 1, SendRequest{ReceiverID: 2, Content: "hello"})

	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("Send() error = %v, want %v", err, domain.ErrPersistence)
	}
	if len(pusher.events) != 0 {
		t.Errorf("Send() pushed %d events after persistence failure, want 0", len(pusher.events))
	}
	if len(notifier.notes) != 0 {
		t.Error("Send() notified after persistence failure")
	}
}

func TestService_MarkRead(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(1, 2, 3)
	pusher := newRecordingPusher(1, 3)
	svc, _ := newTestService(store, pusher)

	m1, _, _ := svc.Send(ctx, 1, SendRequest{ReceiverID: 2, Content: "from 1 a"})
	m2, _, _ := svc.Send(ctx, 1, SendRequest{ReceiverID: 2, Content: "from 1 b"})
	m3, _, _ := svc.Send(ctx, 3, SendRequest{ReceiverID: 2, Content: "from 3"})
	other, _, _ := svc.Send(ctx, 1, SendRequest{ReceiverID: 3, Content: "not for 2"})

	marked, err := svc.MarkRead(ctx, 2, []int64{m1.ID, m2.ID, m3.ID, other.ID, 999, m1.ID}, 0)
	if err != nil {
		t.Fatalf("MarkRead() unexpected error: %v", err)
	}
	if marked != 3 {
		t.Errorf("MarkRead() marked = %d, want 3", marked)
	}

	receipts := pusher.ofType(registry.EventReadReceipt)
	if len(receipts) != 2 {
		t.Fatalf("read_receipt events = %d, want 2 (one per sender)", len(receipts))
	}

	got := make(map[int64]ReadReceipt)
	for _, r := range receipts {
		got[r.userID] = r.data.(ReadReceipt)
	}
	if r := got[1]; r.ReadBy != 2 || len(r.MessageIDs) != 2 {
		t.Errorf("receipt for sender 1 = %+v, want 2 ids read by 2", r)
	}
	if r := got[3]; r.ReadBy != 2 || len(r.MessageIDs) != 1 || r.MessageIDs[0] != m3.ID {
		t.Errorf("receipt for sender 3 = %+v, want [%d]", r, m3.ID)
	}
	if store.messages[other.ID].IsRead {
		t.Error("MarkRead() marked a message addressed to someone else")
	}
}

func TestService_MarkReadIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(1, 2)
	pusher := newRecordingPusher(1)
	svc, _ := newTestService(store, pusher)

	msg, _, _ := svc.Send(ctx, 1, SendRequest{ReceiverID: 2, Content: "hi"})

	for i := 0; i < 2; i++ {
		if _, err := svc.MarkRead(ctx, 2, []int64{msg.ID}, 0); err != nil {
			t.Fatalf("MarkRead() call %d error = %v", i, err)
		}
	}
	if !store.messages[msg.ID].IsRead {
		t.Error("message should be read")
	}
}

func TestService_MarkReadPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(1, 2)
	pusher := newRecordingPusher(1)
	svc, _ := newTestService(store, pusher)

	a, _, _ := svc.Send(ctx, 1, SendRequest{ReceiverID: 2, Content: "a"})
	b, _, _ := svc.Send(ctx, 1, SendRequest{ReceiverID: 2, Content: "b"})
	store.markErr[a.ID] = errors.New("locked")

	marked, err := svc.MarkRead(ctx, 2, []int64{a.ID, b.ID}, 0)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Errorf("MarkRead() error = %v, want %v", err, domain.ErrPersistence)
	}
	if marked != 1 {
		t.Errorf("MarkRead() marked = %d, want 1", marked)
	}
	if receipts := pusher.ofType(registry.EventReadReceipt); len(receipts) != 1 {
		t.Errorf("read_receipt events = %d, want 1", len(receipts))
	}
}

func TestService_MarkReadValidation(t *testing.T) {
	svc, _ := newTestService(newMemoryStore(), newRecordingPusher())

	if _, err := svc.MarkRead(context.Background(), 2, nil, 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("MarkRead(nil) error = %v, want %v", err, domain.ErrValidation)
	}
	if _, err := svc.MarkRead(context.Background(), 2, make([]int64, MaxReadReceiptBatch+1), 0); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("MarkRead(oversized) error = %v, want %v", err, domain.ErrValidation)
	}
}

func TestService_RelayTyping(t *testing.T) {
	tests := []struct {
		name     string
		receiver int64
		status   string
		online   bool
		want     bool
		wantErr  error
	}{
		{name: "typing to online user", receiver: 2, status: TypingStarted, online: true, want: true},
		{name: "stopped to online user", receiver: 2, status: TypingStopped, online: true, want: true},
		{name: "offline receiver", receiver: 2, status: TypingStarted, want: false},
		{name: "bad status", receiver: 2, status: "thinking", wantErr: domain.ErrValidation},
		{name: "missing receiver", status: TypingStarted, wantErr: domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore(1, 2)
			pusher := newRecordingPusher()
			pusher.online[2] = tt.online
			svc, _ := newTestService(store, pusher)

			got, err := svc.RelayTyping(1, tt.receiver, tt.status)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("RelayTyping() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("RelayTyping() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("RelayTyping() = %v, want %v", got, tt.want)
			}

			events := pusher.ofType(registry.EventTypingIndicator)
			if len(events) != 1 {
				t.Fatalf("typing_indicator events = %d, want 1", len(events))
			}
			if ind := events[0].data.(TypingIndicator); ind.SenderID != 1 || ind.Status != tt.status {
				t.Errorf("typing_indicator = %+v, want sender 1 status %q", ind, tt.status)
			}
			if len(store.messages) != 0 {
				t.Error("RelayTyping() persisted something")
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		content string
		want    error
	}{
		{"hello", nil},
		{"", ErrMessageEmpty},
		{strings.Repeat("x", MaxMessageLength), nil},
		{strings.Repeat("x", MaxMessageLength+1), ErrMessageTooLong},
		{string([]byte{0xff, 0xfe}), ErrMessageInvalid},
	}

	for _, tt := range tests {
		if got := ValidateMessage(tt.content); got != tt.want {
			t.Errorf("ValidateMessage(len=%d) = %v, want %v", len(tt.content), got, tt.want)
		}
	}
}
