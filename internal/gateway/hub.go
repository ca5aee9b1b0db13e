package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"consultly/internal/usertoken"
	"consultly/pkg/domain"
)

const defaultAuthTimeout = 10 * time.Second

// Event is the envelope pushed over a live connection.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// TokenVerifier validates the session token a connection presents
// post-connect.
type TokenVerifier interface {
	Verify(token string) (usertoken.Identity, error)
}

// HubConfig wires the hub's dependencies.
type HubConfig struct {
	Verifier    TokenVerifier
	Logger      *slog.Logger
	AuthTimeout time.Duration
	// CheckOrigin overrides the upgrader's origin policy; nil allows all
	// origins (the API fronts the gateway behind the same host).
	CheckOrigin func(r *http.Request) bool
}

// Hub maintains the process-local map of authenticated users to their open
// connections. Multiple simultaneous connections per user are all valid
// dispatch targets; the mapping is rebuilt on every reconnect.
type Hub struct {
	verifier    TokenVerifier
	logger      *slog.Logger
	authTimeout time.Duration
	upgrader    websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]map[*connection]struct{}
}

// NewHub constructs the hub.
func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authTimeout := cfg.AuthTimeout
	if authTimeout <= 0 {
		authTimeout = defaultAuthTimeout
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		verifier:    cfg.Verifier,
		logger:      logger,
		authTimeout: authTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		conns: make(map[string]map[*connection]struct{}),
	}
}

// HandleWS upgrades the request and runs the connection's pumps. The
// connection authenticates post-connect: no event is dispatched to it until
// a valid auth frame arrives.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	c := newConnection(h, ws)
	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID]
	if !ok {
		set = make(map[*connection]struct{})
		h.conns[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *connection) {
	if c.userID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[c.userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.userID)
	}
}

// Dispatch sends the event to every open connection of the user, at most
// once per connection. Returns how many connections accepted the frame.
func (h *Hub) Dispatch(userID string, ev Event) int {
	msg := mustMarshal(ev)
	h.mu.RLock()
	targets := make([]*connection, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(msg) {
			delivered++
		}
	}
	return delivered
}

// DispatchNotification implements notify.Dispatcher.
func (h *Hub) DispatchNotification(userID string, n domain.Notification) {
	h.Dispatch(userID, Event{Type: "notification", Data: n})
}

// Connections reports how many open connections a user currently holds.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}
