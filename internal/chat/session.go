package chat

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"go-messenger/internal/user"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	// Thumbnail uploads arrive base64-encoded inside a frame, so the read
	// limit has to accommodate them.
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// Session is one live client connection. It holds exactly one group
// membership (its own username) for its whole lifetime, dispatches each
// inbound frame to completion before reading the next, and forwards
// broadcasts targeting its username back to the client.
type Session struct {
	user       *user.User
	conn       *websocket.Conn
	registry   GroupRegistry
	dispatcher *Dispatcher
	send       chan []byte
}

// NewSession builds a session that is not yet attached to a transport: the
// connection is set once the group membership is in place and the upgrade
// succeeded. Deliveries landing in between wait in the send buffer.
func NewSession(u *user.User, registry GroupRegistry, dispatcher *Dispatcher) *Session {
	return &Session{
		user:       u,
		registry:   registry,
		dispatcher: dispatcher,
		send:       make(chan []byte, sendBuffer),
	}
}

// Deliver implements Member. Envelopes without the broadcast discriminator
// are protocol violations and are dropped. Must not block: a session whose
// send buffer is full loses the frame rather than stalling the fan-out.
func (s *Session) Deliver(env Envelope) {
	if env.Type != TypeBroadcastGroup {
		log.Printf("session %s: dropping envelope with type %q", s.user.Username, env.Type)
		return
	}
	frame, err := env.ClientFrame()
	if err != nil {
		log.Printf("session %s: render frame: %v", s.user.Username, err)
		return
	}
	select {
	case s.send <- frame:
	default:
		log.Printf("session %s: send buffer full, dropping %s", s.user.Username, env.Source)
	}
}

// readPump processes inbound frames until the connection dies or a handler
// fails fatally. The group membership is released unconditionally on the way
// out, then the write pump is stopped.
func (s *Session) readPump() {
	defer func() {
		s.registry.Leave(s.user.Username, s)
		s.conn.Close()
		close(s.send)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("session %s: %v", s.user.Username, err)
			}
			break
		}
		// The request context dies with the upgrade handler, so dispatches
		// run on a fresh one.
		if err := s.dispatcher.Dispatch(context.Background(), s.user, frame); err != nil {
			log.Printf("session %s: fatal: %v", s.user.Username, err)
			break
		}
	}
}

// writePump drains outbound frames and keeps the connection alive with pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
