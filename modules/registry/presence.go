package registry

import "github.com/go-monolith/mono/pkg/types"

// Presence broadcasts status_update events to every other online user when a
// user comes online or goes offline.
type Presence struct {
	registry *Registry
	logger   types.Logger
}

// NewPresence creates a presence broadcaster subscribed to r's transitions.
func NewPresence(r *Registry, logger types.Logger) *Presence {
	p := &Presence{registry: r, logger: logger}
	r.OnTransition(p.broadcast)
	return p
}

func (p *Presence) broadcast(userID int64, online bool) {
	frame, err := Encode(EventStatusUpdate, StatusUpdate{UserID: userID, Online: online})
	if err != nil {
		p.logger.Error("Failed to encode status update", "userID", userID, "error", err)
		return
	}

	sent := 0
	for _, peer := range p.registry.OnlineUserIDs() {
		if peer == userID {
			continue
		}
		// A failed delivery to one peer never stops the broadcast.
		if p.registry.Deliver(peer, frame) {
			sent++
		}
	}

	p.logger.Debug("Presence broadcast", "userID", userID, "online", online, "recipients", sent)
}
