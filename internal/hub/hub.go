package hub

import (
	"log/slog"
	"sync"

	"votecast/internal/metrics"
)

// Event is a named payload delivered to a live client.
type Event struct {
	Name string
	Data []byte
}

// Hub is the broadcast router: a registry of connected clients and the poll
// rooms they joined. Membership lives only in process memory; after a restart
// clients reconnect and rejoin. All registry access is serialized by one
// mutex, shared between connection handlers and the relay's dispatch calls.
type Hub struct {
	mu      sync.Mutex
	clients map[string]chan Event
	rooms   map[int64]map[string]struct{}
	buffer  int
	logger  *slog.Logger
}

func New(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		clients: make(map[string]chan Event),
		rooms:   make(map[int64]map[string]struct{}),
		buffer:  buffer,
		logger:  logger,
	}
}

// Register connects a client and returns its delivery channel. The channel is
// closed by Disconnect.
func (h *Hub) Register(clientID string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		return ch
	}
	ch := make(chan Event, h.buffer)
	h.clients[clientID] = ch
	h.logger.Info("client connected", "client_id", clientID)
	return ch
}

// Join adds the client to the poll's room. Idempotent.
func (h *Hub) Join(clientID string, pollID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[pollID]
	if !ok {
		room = make(map[string]struct{})
		h.rooms[pollID] = room
	}
	room[clientID] = struct{}{}
	h.logger.Info("client joined poll", "client_id", clientID, "poll_id", pollID)
}

// Leave removes the client from the room. No-op if absent.
func (h *Hub) Leave(clientID string, pollID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(clientID, pollID)
}

// Disconnect removes the client from every room and closes its channel.
func (h *Hub) Disconnect(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for pollID := range h.rooms {
		h.leaveLocked(clientID, pollID)
	}
	if ch, ok := h.clients[clientID]; ok {
		delete(h.clients, clientID)
		close(ch)
		h.logger.Info("client disconnected", "client_id", clientID)
	}
}

// BroadcastToPoll delivers the event to every current member of the poll's
// room. An empty room is a no-op, not an error.
func (h *Hub) BroadcastToPoll(pollID int64, name string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for clientID := range h.rooms[pollID] {
		if ch, ok := h.clients[clientID]; ok {
			h.send(clientID, ch, Event{Name: name, Data: data})
		}
	}
	metrics.IncBroadcast("poll")
}

// BroadcastToAll delivers the event to every connected client regardless of
// room membership.
func (h *Hub) BroadcastToAll(name string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for clientID, ch := range h.clients {
		h.send(clientID, ch, Event{Name: name, Data: data})
	}
	metrics.IncBroadcast("global")
}

// Members reports the current size of a poll's room.
func (h *Hub) Members(pollID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[pollID])
}

func (h *Hub) leaveLocked(clientID string, pollID int64) {
	room, ok := h.rooms[pollID]
	if !ok {
		return
	}
	if _, member := room[clientID]; !member {
		return
	}
	delete(room, clientID)
	if len(room) == 0 {
		delete(h.rooms, pollID)
	}
	h.logger.Info("client left poll", "client_id", clientID, "poll_id", pollID)
}

// send never blocks: a client that cannot keep up loses the event and
// re-syncs on its next explicit read.
func (h *Hub) send(clientID string, ch chan Event, ev Event) {
	select {
	case ch <- ev:
	default:
		h.logger.Warn("dropping event for slow client",
			"client_id", clientID,
			"event", ev.Name,
		)
	}
}
