package realtime

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/healthconnect/scheduling/internal/scheduling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// Handler upgrades HTTP connections to WebSocket and pumps frames between
// the connection and the hub.
type Handler struct {
	hub       *Hub
	session   *Session
	actorFrom func(r *http.Request) (scheduling.Actor, bool)
	log       zerolog.Logger
}

// NewHandler creates the WebSocket endpoint. actorFrom extracts the
// authenticated principal the API middleware placed on the request.
func NewHandler(hub *Hub, session *Session, actorFrom func(r *http.Request) (scheduling.Actor, bool), log zerolog.Logger) *Handler {
	return &Handler{
		hub:       hub,
		session:   session,
		actorFrom: actorFrom,
		log:       log.With().Str("component", "ws").Logger(),
	}
}

// HandleConnect upgrades the connection, registers the client (joining its
// private user room), and starts the read/write pumps.
func (h *Handler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFrom(r)
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:    uuid.NewString(),
		Actor: actor,
		Send:  make(chan []byte, 256),
	}

	h.hub.Register(client)
	h.log.Info().Stringer("user_id", actor.UserID).Str("client_id", client.ID).Msg("client connected")

	// The request context dies as soon as this handler returns, so frames
	// arriving later need a context scoped to the connection itself.
	connCtx, cancel := context.WithCancel(context.Background())

	go h.writePump(client, ws)
	go h.readPump(connCtx, cancel, client, ws)
}

func (h *Handler) readPump(ctx context.Context, cancel context.CancelFunc, client *Client, ws *websocket.Conn) {
	defer func() {
		cancel()
		h.hub.Unregister(client)
		ws.Close()
		h.log.Info().Str("client_id", client.ID).Msg("client disconnected")
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}
		h.session.HandleMessage(ctx, client, message)
	}
}

func (h *Handler) writePump(client *Client, ws *websocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
			break
		}
	}
}
