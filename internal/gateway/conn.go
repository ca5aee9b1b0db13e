package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
	sendBuffer     = 32
)

// Connection states. A connection must reach stateOpen (authenticated)
// before it becomes a dispatch target.
const (
	stateConnecting int32 = iota
	stateAuthenticating
	stateOpen
	stateClosed
)

// authMessage is the first frame a client must send after connecting.
type authMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type connection struct {
	hub    *Hub
	ws     *websocket.Conn
	send   chan []byte
	userID string
	state  atomic.Int32

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

func newConnection(h *Hub, ws *websocket.Conn) *connection {
	c := &connection{
		hub:  h,
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}
	c.state.Store(stateConnecting)
	return c
}

// readPump authenticates the connection, then drains inbound frames so pongs
// and close frames are processed. Inbound handling and outbound dispatch on
// one connection are strictly ordered within their own pumps; connections
// are independent of each other.
func (c *connection) readPump() {
	defer c.close()
	c.ws.SetReadLimit(maxMessageSize)

	c.state.Store(stateAuthenticating)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.authTimeout))
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return
	}
	var auth authMessage
	if err := json.Unmarshal(raw, &auth); err != nil || auth.Type != "auth" {
		c.closeWith(websocket.ClosePolicyViolation, "auth required")
		return
	}
	ident, err := c.hub.verifier.Verify(auth.Token)
	if err != nil {
		c.closeWith(websocket.ClosePolicyViolation, "invalid token")
		return
	}
	c.userID = ident.UserID
	c.state.Store(stateOpen)
	c.hub.register(c)
	c.enqueue(mustMarshal(Event{Type: "auth_ok"}))

	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump serializes all outbound frames for the connection.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, c.closeFrame())
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue offers a frame without blocking. A full buffer drops the frame:
// dispatch is at-most-once per connection and durability lives in the
// notification row, not this channel.
func (c *connection) enqueue(msg []byte) bool {
	if c.state.Load() != stateOpen {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	c.state.Store(stateClosed)
	c.hub.unregister(c)
}

// closeWith records the close code and reason, then closes. The frame itself
// is written by writePump when the send channel drains; writePump is the sole
// writer on the socket, so the close frame never races a ping.
func (c *connection) closeWith(code int, reason string) {
	c.mu.Lock()
	if !c.closed {
		c.closeCode = code
		c.closeReason = reason
	}
	c.mu.Unlock()
	c.close()
}

func (c *connection) closeFrame() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeCode == 0 {
		return nil
	}
	return websocket.FormatCloseMessage(c.closeCode, c.closeReason)
}

func mustMarshal(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
