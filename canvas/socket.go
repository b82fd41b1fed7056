package canvas

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	socketWriteWait  = 10 * time.Second
	socketPongWait   = 60 * time.Second
	socketPingPeriod = socketPongWait * 9 / 10
	socketReadLimit  = 16 * 1024 * 1024
)

// socketMessage is the envelope used in both directions on /ws.
//
// inbound:  pointer | brush | reset | image
// outbound: cursor | image | brush | error
type socketMessage struct {
	Type    string          `json:"type"`
	Pointer *PointerEvent   `json:"pointer,omitempty"`
	Brush   json.RawMessage `json:"brush,omitempty"`
	Image   string          `json:"image,omitempty"`

	Cursor   *Cursor `json:"cursor,omitempty"`
	Empty    bool    `json:"empty,omitempty"`
	Sequence uint64  `json:"sequence,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// socketConn serialises writes; gorilla allows one concurrent writer.
type socketConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// send writes one JSON message under the write lock.
func (s *socketConn) send(msg socketMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return s.conn.WriteJSON(msg)
}

// ping writes a keepalive control frame.
func (s *socketConn) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait))
}

// handleSocket upgrades to a websocket that carries pointer, brush and image
// messages in and image events out. The session stays pinned while the
// socket is open.
func (m *Module) handleSocket(c *gin.Context) {
	session, release, err := m.sessions.Attach(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	defer release()

	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("canvas: websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	out := &socketConn{conn: conn}
	events, cancel := session.Surface.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		pumpEvents(out, events)
	}()

	m.serveSocket(out, session)
	cancel()
	<-done
}

// pumpEvents forwards image events and keeps the connection alive until the
// subscription closes or a write fails.
func pumpEvents(out *socketConn, events <-chan ImageEvent) {
	ticker := time.NewTicker(socketPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			msg := socketMessage{Type: "image", Image: ev.Image, Empty: ev.Empty, Sequence: ev.Sequence}
			if err := out.send(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := out.ping(); err != nil {
				return
			}
		}
	}
}

// serveSocket reads inbound messages until the peer goes away.
func (m *Module) serveSocket(out *socketConn, session *Session) {
	conn := out.conn
	conn.SetReadLimit(socketReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(socketPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(socketPongWait))
	})

	for {
		var msg socketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("canvas: websocket read failed: %v", err)
			}
			return
		}
		reply, ok := m.applySocketMessage(session, msg)
		if !ok {
			continue
		}
		if err := out.send(reply); err != nil {
			return
		}
	}
}

// applySocketMessage refreshes the session's idle clock and applies msg.
func (m *Module) applySocketMessage(session *Session, msg socketMessage) (socketMessage, bool) {
	m.sessions.Touch(session.ID)
	return handleSocketMessage(session.Surface, msg)
}

// handleSocketMessage applies one inbound message and returns the direct
// reply, if any. Image updates travel through the subscription instead.
func handleSocketMessage(surface *Surface, msg socketMessage) (socketMessage, bool) {
	switch msg.Type {
	case "pointer":
		if msg.Pointer == nil {
			return socketMessage{Type: "error", Error: "pointer payload is required"}, true
		}
		surface.Dispatch(*msg.Pointer)
		cursor := surface.Cursor()
		return socketMessage{Type: "cursor", Cursor: &cursor}, true
	case "brush":
		var req brushRequest
		if err := json.Unmarshal(msg.Brush, &req); err != nil {
			return socketMessage{Type: "error", Error: "invalid brush payload"}, true
		}
		if err := applyBrush(surface, req); err != nil {
			return socketMessage{Type: "error", Error: err.Error()}, true
		}
		raw, _ := json.Marshal(surface.Brush())
		cursor := surface.Cursor()
		return socketMessage{Type: "brush", Brush: raw, Cursor: &cursor}, true
	case "reset":
		surface.Reset()
		return socketMessage{}, false
	case "image":
		if err := surface.LoadImage(msg.Image); err != nil {
			return socketMessage{Type: "error", Error: err.Error()}, true
		}
		return socketMessage{}, false
	default:
		return socketMessage{Type: "error", Error: http.StatusText(http.StatusBadRequest) + ": unknown message type"}, true
	}
}
