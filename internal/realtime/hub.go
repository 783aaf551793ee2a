// Package realtime manages logical rooms over WebSocket: a private
// per-user room for notification delivery and a per-appointment room for
// live consultations.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/scheduling"
)

// Event is the wire envelope for everything pushed to clients: a structured
// event name plus a JSON-serializable payload.
type Event struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// UserRoom is the private delivery room every authenticated client joins
// on connect.
func UserRoom(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// ConsultationRoom scopes an appointment's chat/video room by its opaque
// token.
func ConsultationRoom(roomID string) string {
	return "room:" + roomID
}

// Client represents a single WebSocket connection and the principal
// behind it.
type Client struct {
	ID    string
	Actor scheduling.Actor
	Send  chan []byte

	mu    sync.Mutex
	rooms map[string]struct{}
}

func (c *Client) trackJoin(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rooms == nil {
		c.rooms = make(map[string]struct{})
	}
	c.rooms[room] = struct{}{}
}

func (c *Client) trackLeave(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, room)
}

func (c *Client) joinedRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

// Hub tracks clients and their room membership. All operations are
// thread-safe via sync.RWMutex. Fan-out never blocks: a client whose send
// buffer is full misses the push and catches up from the persisted rows.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
	all   map[*Client]struct{}
	log   zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[*Client]struct{}),
		all:   make(map[*Client]struct{}),
		log:   log.With().Str("component", "hub").Logger(),
	}
}

// Register adds a client and joins it to its private user room.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.all[client] = struct{}{}
	h.mu.Unlock()

	h.Join(client, UserRoom(client.Actor.UserID))
}

// Unregister removes a client from every room and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}

	for _, room := range client.joinedRooms() {
		h.removeLocked(client, room)
	}

	delete(h.all, client)
	close(client.Send)
}

// Join subscribes the client to a room.
func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][client] = struct{}{}
	client.trackJoin(room)
}

// Leave unsubscribes the client from a room.
func (h *Hub) Leave(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client, room)
}

func (h *Hub) removeLocked(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	client.trackLeave(room)
}

// Broadcast sends an event to every member of the room.
func (h *Hub) Broadcast(room string, event Event) {
	h.broadcast(room, "", event)
}

// BroadcastExcept sends an event to every room member except the named
// client. Used for presence events and WebRTC signal relay.
func (h *Hub) BroadcastExcept(room, exceptClientID string, event Event) {
	h.broadcast(room, exceptClientID, event)
}

func (h *Hub) broadcast(room, exceptClientID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("event", event.Event).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[room] {
		if exceptClientID != "" && client.ID == exceptClientID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			// Client buffer full; skip to avoid blocking.
		}
	}
}

// SendTo delivers an event to one client only.
func (h *Hub) SendTo(client *Client, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("event", event.Event).Msg("marshal event")
		return
	}

	select {
	case client.Send <- data:
	default:
	}
}

// PushToUser implements the notification dispatcher's push transport by
// broadcasting to the user's private room. Always best-effort.
func (h *Hub) PushToUser(userID uuid.UUID, event string, payload any) error {
	h.Broadcast(UserRoom(userID), Event{Event: event, Payload: payload})
	return nil
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// RoomCount returns the number of clients in a room.
func (h *Hub) RoomCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
