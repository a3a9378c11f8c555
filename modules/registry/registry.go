// Package registry tracks which users currently hold realtime connections and
// fans outbound frames out to every connection of a user.
package registry

import (
	"sort"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
)

// Connection is one live realtime connection as seen by the registry.
// Send must not block: it enqueues the frame and reports whether it was accepted.
type Connection interface {
	ID() string
	Send(frame []byte) bool
	IsOpen() bool
	Close() error
}

// TransitionFunc observes a user moving between offline and online.
// It runs synchronously inside Add/Remove and must not call Add or Remove.
type TransitionFunc func(userID int64, online bool)

// Registry maps user ids to their set of open connections.
// A user id is present only while it has at least one connection.
type Registry struct {
	// mutateMu serializes Add/Remove so transitions are observed in mutation order.
	mutateMu sync.Mutex

	mu    sync.RWMutex
	users map[int64]map[string]Connection

	obsMu     sync.RWMutex
	observers []TransitionFunc

	logger types.Logger
}

// New creates an empty registry.
func New(logger types.Logger) *Registry {
	return &Registry{
		users:  make(map[int64]map[string]Connection),
		logger: logger,
	}
}

// OnTransition subscribes fn to online/offline transitions.
func (r *Registry) OnTransition(fn TransitionFunc) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, fn)
}

// Add registers conn under userID. Adding the same connection twice is a no-op.
func (r *Registry) Add(userID int64, conn Connection) {
	r.mutateMu.Lock()
	defer r.mutateMu.Unlock()

	r.mu.Lock()
	conns, existed := r.users[userID]
	if !existed {
		conns = make(map[string]Connection)
		r.users[userID] = conns
	}
	conns[conn.ID()] = conn
	count := len(conns)
	r.mu.Unlock()

	r.logger.Debug("Connection registered", "userID", userID, "connID", conn.ID(), "connections", count)

	if !existed {
		r.notify(userID, true)
	}
}

// Remove unregisters conn. The user entry is deleted with its last connection.
// Removing an unknown connection is a no-op.
func (r *Registry) Remove(userID int64, conn Connection) {
	r.mutateMu.Lock()
	defer r.mutateMu.Unlock()

	r.mu.Lock()
	conns, ok := r.users[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, ok := conns[conn.ID()]; !ok {
		r.mu.Unlock()
		return
	}
	delete(conns, conn.ID())
	wentOffline := len(conns) == 0
	if wentOffline {
		delete(r.users, userID)
	}
	r.mu.Unlock()

	r.logger.Debug("Connection unregistered", "userID", userID, "connID", conn.ID())

	if wentOffline {
		r.notify(userID, false)
	}
}

func (r *Registry) notify(userID int64, online bool) {
	r.obsMu.RLock()
	observers := append([]TransitionFunc(nil), r.observers...)
	r.obsMu.RUnlock()

	for _, fn := range observers {
		fn(userID, online)
	}
}

// SendToUser encodes one frame and enqueues it on every open connection of
// userID. It returns true if at least one connection accepted the frame.
func (r *Registry) SendToUser(userID int64, eventType string, data any) bool {
	frame, err := Encode(eventType, data)
	if err != nil {
		r.logger.Error("Failed to encode outbound event", "type", eventType, "error", err)
		return false
	}
	return r.Deliver(userID, frame)
}

// Deliver enqueues a pre-encoded frame on every open connection of userID.
func (r *Registry) Deliver(userID int64, frame []byte) bool {
	conns := r.connections(userID)
	delivered := false
	for _, conn := range conns {
		if !conn.IsOpen() {
			continue
		}
		if conn.Send(frame) {
			delivered = true
		}
	}
	return delivered
}

// connections returns a snapshot so sends happen without holding the lock.
func (r *Registry) connections(userID int64) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userID]
	out := make([]Connection, 0, len(conns))
	for _, conn := range conns {
		out = append(out, conn)
	}
	return out
}

// IsOnline reports whether userID has at least one registered connection.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// OnlineUserIDs returns a sorted snapshot of all online user ids.
func (r *Registry) OnlineUserIDs() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ConnectionCount returns the number of connections registered for userID.
func (r *Registry) ConnectionCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// UserCount returns the number of online users.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// TotalConnections returns the number of registered connections across all users.
func (r *Registry) TotalConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	total := 0
	for _, conns := range r.users {
		total += len(conns)
	}
	return total
}

// CloseAll closes every registered connection. Connections remove themselves
// as their read loops exit.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	var all []Connection
	for _, conns := range r.users {
		for _, conn := range conns {
			all = append(all, conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range all {
		if err := conn.Close(); err != nil {
			r.logger.Warn("Failed to close connection", "connID", conn.ID(), "error", err)
		}
	}
}
