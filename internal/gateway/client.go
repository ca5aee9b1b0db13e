package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const defaultReconnectDelay = 3 * time.Second

// ClientConfig configures a reconnecting gateway client.
type ClientConfig struct {
	// URL is the ws:// or wss:// endpoint.
	URL   string
	Token string
	// ReconnectDelay is the fixed back-off applied after an abnormal close.
	// Connection counts are small at this scale, so no exponential growth.
	ReconnectDelay time.Duration
	Logger         *slog.Logger
}

// Client maintains a live connection to the gateway, authenticates it, and
// reconnects with a fixed delay on abnormal closure. Received events are
// delivered on Events in arrival order.
type Client struct {
	url            string
	token          string
	reconnectDelay time.Duration
	logger         *slog.Logger
	events         chan Event
}

// NewClient constructs the client.
func NewClient(cfg ClientConfig) *Client {
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:            cfg.URL,
		token:          cfg.Token,
		reconnectDelay: delay,
		logger:         logger,
		events:         make(chan Event, sendBuffer),
	}
}

// Events returns the inbound event stream.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Run connects and keeps the session alive until ctx is cancelled or the
// server closes normally. Abnormal drops trigger a fixed-delay reconnect.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	for {
		normal, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if normal {
			return nil
		}
		if err != nil {
			c.logger.Warn("gateway connection dropped, reconnecting",
				"delay", c.reconnectDelay, "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
		}
	}
}

// session runs one dial/auth/read cycle. It reports whether the server
// closed the connection normally.
func (c *Client) session(ctx context.Context) (normal bool, err error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = ws.Close()
	})
	defer stop()

	auth := authMessage{Type: "auth", Token: c.token}
	if err := ws.WriteJSON(auth); err != nil {
		return false, err
	}
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return true, nil
			}
			return false, err
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return true, nil
		}
	}
}
