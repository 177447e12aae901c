// Package realtime streams roster presence changes to admin dashboards
// over WebSocket, fanned out across server instances through Redis pub/sub.
package realtime

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub tracks dashboard subscribers per meeting and fans presence messages
// out to them.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]map[*Client]struct{}
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[uuid.UUID]map[*Client]struct{}),
		logger: logger,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.meetingID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.meetingID] = room
	}
	room[c] = struct{}{}
	h.logger.Debug("dashboard subscribed",
		zap.String("meeting_id", c.meetingID.String()),
		zap.Int("subscribers", len(room)))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.meetingID]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.meetingID)
	}
}

// broadcast delivers a raw message to every subscriber of the meeting.
// Slow clients are dropped rather than blocking the fan-out.
func (h *Hub) broadcast(meetingID uuid.UUID, message []byte) {
	h.mu.RLock()
	room := h.rooms[meetingID]
	stale := make([]*Client, 0)
	for c := range room {
		select {
		case c.send <- message:
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.logger.Warn("dropping slow dashboard subscriber",
			zap.String("meeting_id", meetingID.String()))
		h.unregister(c)
	}
}
