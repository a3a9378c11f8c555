// Package calls runs the call signaling state machine: request, accept or
// decline, end, timeout, and relay of negotiation payloads between the two
// participants. Media never passes through this service.
package calls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/example/realtime-messaging/domain/messaging"
	"github.com/example/realtime-messaging/modules/registry"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

const (
	// DefaultTimeout is how long a call may ring before it is marked missed.
	DefaultTimeout = 30 * time.Second

	persistTimeout = 5 * time.Second
)

type activeCall struct {
	session domain.CallSession
	timer   *time.Timer
}

// Manager owns the table of non-terminal calls. Terminal calls are removed
// from the table, so any later request for them reports not found.
type Manager struct {
	store    Store
	users    UserLookup
	pusher   Pusher
	notifier Notifier
	logger   types.Logger
	timeout  time.Duration
	now      func() time.Time

	mu     sync.Mutex
	active map[string]*activeCall
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the ring timeout.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a call manager.
func NewManager(store Store, users UserLookup, pusher Pusher, notifier Notifier, logger types.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		users:    users,
		pusher:   pusher,
		notifier: notifier,
		logger:   logger,
		timeout:  DefaultTimeout,
		now:      time.Now,
		active:   make(map[string]*activeCall),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestCall starts ringing receiverID. The session is registered even when
// persisting it fails; in that case the session is returned together with an
// error wrapping domain.ErrPersistence. delivered reports whether the receiver
// had a connection that accepted the call_request.
func (m *Manager) RequestCall(ctx context.Context, initiatorID, receiverID int64, callType domain.CallType) (*domain.CallSession, bool, error) {
	if receiverID <= 0 {
		return nil, false, ErrReceiverRequired
	}
	if receiverID == initiatorID {
		return nil, false, ErrSelfCall
	}
	if !callType.Valid() {
		return nil, false, ErrCallType
	}

	if _, err := m.users.GetUser(ctx, receiverID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: receiver %d", domain.ErrNotFound, receiverID)
		}
		return nil, false, fmt.Errorf("%w: receiver lookup: %v", domain.ErrPersistence, err)
	}

	session := domain.CallSession{
		CallID:      uuid.New().String(),
		InitiatorID: initiatorID,
		ReceiverID:  receiverID,
		Type:        callType,
		Status:      domain.CallRequested,
		RequestedAt: m.now(),
	}

	var persistErr error
	if err := m.store.CreateCallSession(ctx, &session); err != nil {
		m.logger.Error("Failed to persist call session", "callID", session.CallID, "error", err)
		persistErr = fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	m.mu.Lock()
	callID := session.CallID
	m.active[callID] = &activeCall{
		session: session,
		timer:   time.AfterFunc(m.timeout, func() { m.expire(callID) }),
	}
	m.mu.Unlock()

	delivered := m.pusher.SendToUser(receiverID, registry.EventCallRequest, CallRequest{
		CallID:   callID,
		CallerID: initiatorID,
		Type:     callType,
	})

	m.logger.Info("Call requested", "callID", callID, "initiatorID", initiatorID, "receiverID", receiverID, "type", callType, "delivered", delivered)
	return &session, delivered, persistErr
}

// RespondToCall applies the receiver's accept or decline.
func (m *Manager) RespondToCall(ctx context.Context, responderID int64, callID, action string) (*domain.CallSession, error) {
	if callID == "" {
		return nil, ErrCallIDRequired
	}
	if action != ActionAccept && action != ActionDecline {
		return nil, ErrAction
	}

	m.mu.Lock()
	ac, ok := m.active[callID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: call %s", domain.ErrNotFound, callID)
	}
	if ac.session.ReceiverID != responderID {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: only the receiver can respond", domain.ErrUnauthorized)
	}
	if ac.session.Status != domain.CallRequested {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: call is %s", domain.ErrConflict, ac.session.Status)
	}

	ac.timer.Stop()
	now := m.now()
	if action == ActionAccept {
		ac.session.Status = domain.CallOngoing
		ac.session.StartedAt = &now
	} else {
		ac.session.Status = domain.CallDeclined
		ac.session.EndedAt = &now
		delete(m.active, callID)
	}
	session := ac.session
	m.mu.Unlock()

	persistErr := m.persist(ctx, &session)

	if action == ActionAccept {
		event := CallAccepted{CallID: callID, AcceptedBy: responderID}
		m.pusher.SendToUser(session.InitiatorID, registry.EventCallAccepted, event)
		m.pusher.SendToUser(session.ReceiverID, registry.EventCallAccepted, event)
		m.logger.Info("Call accepted", "callID", callID)
	} else {
		event := CallDeclined{CallID: callID, DeclinedBy: responderID}
		m.pusher.SendToUser(session.InitiatorID, registry.EventCallDeclined, event)
		m.pusher.SendToUser(session.ReceiverID, registry.EventCallDeclined, event)
		m.notifier.Notify(ctx, domain.Notification{
			UserID:      session.InitiatorID,
			Type:        domain.NotificationCallDeclined,
			Title:       "Call declined",
			Body:        fmt.Sprintf("Your %s call was declined", session.Type),
			ReferenceID: callID,
		})
		m.logger.Info("Call declined", "callID", callID)
	}

	return &session, persistErr
}

// EndCall hangs up a call on behalf of either participant. Ending a call that
// is still ringing cancels it with a zero duration.
func (m *Manager) EndCall(ctx context.Context, userID int64, callID string) (*domain.CallSession, error) {
	if callID == "" {
		return nil, ErrCallIDRequired
	}

	m.mu.Lock()
	ac, ok := m.active[callID]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: call %s", domain.ErrNotFound, callID)
	}
	if !ac.session.IsParticipant(userID) {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: not a participant", domain.ErrUnauthorized)
	}

	ac.timer.Stop()
	now := m.now()
	duration := 0
	if ac.session.StartedAt != nil {
		duration = int(now.Sub(*ac.session.StartedAt).Seconds())
	}
	ac.session.Status = domain.CallEnded
	ac.session.EndedAt = &now
	ac.session.Duration = duration
	delete(m.active, callID)
	session := ac.session
	m.mu.Unlock()

	persistErr := m.persist(ctx, &session)

	event := CallEnded{CallID: callID, EndedBy: userID, Duration: duration}
	m.pusher.SendToUser(session.InitiatorID, registry.EventCallEnded, event)
	m.pusher.SendToUser(session.ReceiverID, registry.EventCallEnded, event)

	m.logger.Info("Call ended", "callID", callID, "endedBy", userID, "duration", duration)
	return &session, persistErr
}

// RelaySignal forwards payload verbatim to the other participant. targetID
// may be zero; otherwise it must name the other participant.
func (m *Manager) RelaySignal(_ context.Context, senderID int64, callID string, targetID int64, payload json.RawMessage) (bool, error) {
	if callID == "" {
		return false, ErrCallIDRequired
	}
	if len(payload) == 0 || string(payload) == "null" {
		return false, ErrSignalRequired
	}

	m.mu.Lock()
	ac, ok := m.active[callID]
	if !ok {
		m.mu.Unlock()
		return false, fmt.Errorf("%w: call %s", domain.ErrNotFound, callID)
	}
	peer := ac.session.Peer(senderID)
	m.mu.Unlock()

	if peer == 0 {
		return false, fmt.Errorf("%w: not a participant", domain.ErrUnauthorized)
	}
	if targetID != 0 && targetID != peer {
		return false, fmt.Errorf("%w: recipient is not the other participant", domain.ErrUnauthorized)
	}

	return m.pusher.SendToUser(peer, registry.EventSignal, Signal{
		CallID:   callID,
		SenderID: senderID,
		Signal:   payload,
	}), nil
}

// HangupUser ends every active call of userID. It is used when a user loses
// their last connection.
func (m *Manager) HangupUser(ctx context.Context, userID int64) int {
	m.mu.Lock()
	var ids []string
	for id, ac := range m.active {
		if ac.session.IsParticipant(userID) {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	ended := 0
	for _, id := range ids {
		if _, err := m.EndCall(ctx, userID, id); err != nil && !errors.Is(err, domain.ErrPersistence) {
			continue
		}
		ended++
	}
	if ended > 0 {
		m.logger.Info("Ended calls of disconnected user", "userID", userID, "count", ended)
	}
	return ended
}

// expire marks a still-ringing call as missed. It runs at most once per call
// because the call is removed from the table under the lock.
func (m *Manager) expire(callID string) {
	m.mu.Lock()
	ac, ok := m.active[callID]
	if !ok || ac.session.Status != domain.CallRequested {
		m.mu.Unlock()
		return
	}
	now := m.now()
	ac.session.Status = domain.CallMissed
	ac.session.EndedAt = &now
	delete(m.active, callID)
	session := ac.session
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	_ = m.persist(ctx, &session)

	event := CallMissed{
		CallID:     callID,
		CallerID:   session.InitiatorID,
		ReceiverID: session.ReceiverID,
		Type:       session.Type,
	}
	m.pusher.SendToUser(session.InitiatorID, registry.EventCallMissed, event)
	m.pusher.SendToUser(session.ReceiverID, registry.EventCallMissed, event)

	m.notifier.Notify(ctx, domain.Notification{
		UserID:      session.ReceiverID,
		Type:        domain.NotificationMissedCall,
		Title:       "Missed call",
		Body:        fmt.Sprintf("You missed a %s call", session.Type),
		ReferenceID: callID,
	})

	m.logger.Info("Call missed", "callID", callID)
}

// persist saves a transition. Failures are logged and returned; the in-memory
// state is kept.
func (m *Manager) persist(ctx context.Context, session *domain.CallSession) error {
	if err := m.store.UpdateCallSession(ctx, session); err != nil {
		m.logger.Error("Failed to persist call session", "callID", session.CallID, "status", session.Status, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

// ActiveCall returns a copy of a non-terminal call.
func (m *Manager) ActiveCall(callID string) (domain.CallSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ac, ok := m.active[callID]
	if !ok {
		return domain.CallSession{}, false
	}
	return ac.session, true
}

// ActiveCount returns the number of ringing or ongoing calls.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Close stops all ring timers and forgets active calls.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, ac := range m.active {
		ac.timer.Stop()
		delete(m.active, id)
	}
}
