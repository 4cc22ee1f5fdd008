package ws

import (
	"encoding/json"
	"sync"

	"mining_webapp/internal/logger"
	"mining_webapp/internal/mining"
)

// Hub fans live session states out to each user's connected webapp clients.
// A user may hold several connections (multiple devices/tabs); all of them
// receive every tick.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[int64]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID] = set
	}
	set[c] = struct{}{}
}

// Unregister drops the client and reports how many connections the user still
// has, so the caller can tear down the session loop after the last one.
func (h *Hub) Unregister(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.UserID]
	if !ok {
		return 0
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
		return 0
	}
	return len(set)
}

type stateEnvelope struct {
	Type string       `json:"type"`
	Data mining.State `json:"data"`
}

// PushState delivers a tick's live state to the user's clients. Slow clients
// are skipped rather than blocking the tick; they catch up on the next one.
func (h *Hub) PushState(st mining.State) {
	h.mu.RLock()
	set, ok := h.clients[st.UserID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	payload, err := json.Marshal(stateEnvelope{Type: "session_state", Data: st})
	if err != nil {
		h.mu.RUnlock()
		logger.Error("marshal session state", "error", err)
		return
	}
	for c := range set {
		select {
		case c.Send <- payload:
		default:
		}
	}
	h.mu.RUnlock()
}
