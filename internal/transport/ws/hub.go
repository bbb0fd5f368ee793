package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Hub maintains sessionID -> set of connected clients and fans events out
// to a session's room. It implements app.Gateway. Delivery is at-least-once
// and per-socket ordered; a client whose buffer is full loses the event
// rather than blocking the room.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		logger: logger,
	}
}

// Join adds a client to a session's room under the given user identity,
// moving it out of any previous room.
func (h *Hub) Join(sessionID, userID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
	if h.rooms[sessionID] == nil {
		h.rooms[sessionID] = make(map[*Client]struct{})
	}
	h.rooms[sessionID][c] = struct{}{}
	c.sessionID = sessionID
	c.userID = userID
	h.logger.Debug("client joined room",
		zap.String("sessionId", sessionID),
		zap.String("userId", c.userID))
}

// Leave removes a client from its room.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if c.sessionID == "" {
		return
	}
	if room, ok := h.rooms[c.sessionID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.sessionID)
		}
	}
	c.sessionID = ""
}

// Broadcast delivers an event to every socket in the session's room.
func (h *Hub) Broadcast(sessionID, event string, payload any) {
	h.broadcast(sessionID, "", event, payload)
}

// BroadcastExcept skips the named user, e.g. the leaver on participant-left.
func (h *Hub) BroadcastExcept(sessionID, excludeUserID, event string, payload any) {
	h.broadcast(sessionID, excludeUserID, event, payload)
}

func (h *Hub) broadcast(sessionID, excludeUserID, event string, payload any) {
	msg := outboundMessage{Type: event, Payload: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[sessionID] {
		if excludeUserID != "" && c.userID == excludeUserID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping event for slow client",
				zap.String("sessionId", sessionID),
				zap.String("userId", c.userID),
				zap.String("event", event))
		}
	}
}

// RoomSize reports how many sockets are in a session's room.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}
