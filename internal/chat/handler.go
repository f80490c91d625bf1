package chat

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"go-messenger/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	registry   GroupRegistry
	dispatcher *Dispatcher
	users      Directory
}

func NewHandler(registry GroupRegistry, dispatcher *Dispatcher, users Directory) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		users:      users,
	}
}

// ServeWs upgrades an authenticated request into a live session. Without an
// identity in the context the upgrade is refused and no group is joined.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	username, ok := r.Context().Value(middleware.UsernameKey).(string)
	if !ok || username == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	viewer, err := h.users.GetUserByUsername(r.Context(), username)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// Join first, then accept the transport: a broadcast racing the
	// handshake waits in the session's send buffer until the pumps start.
	session := NewSession(viewer, h.registry, h.dispatcher)
	if err := h.registry.Join(viewer.Username, session); err != nil {
		log.Printf("session %s: join: %v", viewer.Username, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.registry.Leave(viewer.Username, session)
		log.Println(err)
		return
	}
	session.conn = conn

	go session.writePump()
	go session.readPump()
}
