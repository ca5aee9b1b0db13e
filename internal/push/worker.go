package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"consultly/internal/notify"
)

// Sender delivers one push message to one device token. Implemented by the
// vendor HTTP client.
type Sender interface {
	SendPush(ctx context.Context, token, title, body string, data map[string]string) error
}

// Deliveries is the consumer surface the worker needs from mq.Consumer.
type Deliveries interface {
	Deliveries(ctx context.Context) (<-chan amqp.Delivery, error)
}

// Worker consumes notification events and fans them out to the vendor for
// every device token the recipient registered. Delivery is best-effort:
// failures are logged and the event is acked either way, because the durable
// notification row already guarantees the user sees the update.
type Worker struct {
	consumer Deliveries
	tokens   *TokenStore
	sender   Sender
	logger   *slog.Logger
	timeout  time.Duration
}

// WorkerConfig wires the worker.
type WorkerConfig struct {
	Consumer Deliveries
	Tokens   *TokenStore
	Sender   Sender
	Logger   *slog.Logger
	Timeout  time.Duration
}

// NewWorker constructs the worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Worker{
		consumer: cfg.Consumer,
		tokens:   cfg.Tokens,
		sender:   cfg.Sender,
		logger:   logger,
		timeout:  timeout,
	}
}

// Run consumes events until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	deliveries, err := w.consumer.Deliveries(ctx)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			w.handle(ctx, d)
		}
	}
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) {
	defer func() { _ = d.Ack(false) }()
	ev, err := notify.DecodePushEvent(d.Body)
	if err != nil {
		w.logger.Warn("drop malformed push event", "err", err)
		return
	}
	tokens, err := w.tokens.Tokens(ctx, ev.UserID)
	if err != nil {
		w.logger.Warn("load push tokens failed", "user", ev.UserID, "err", err)
		return
	}
	for _, token := range tokens {
		sendCtx, cancel := context.WithTimeout(ctx, w.timeout)
		err := w.sender.SendPush(sendCtx, token, ev.Title, ev.Body, ev.Data)
		cancel()
		if err != nil {
			w.logger.Warn("push delivery failed",
				"user", ev.UserID, "type", ev.Type, "err", err)
		}
	}
}

// HTTPSender posts push messages to the vendor messaging service.
type HTTPSender struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPSender constructs the sender.
func NewHTTPSender(url, apiKey string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPSender{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type pushPayload struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// SendPush delivers one message. No retry: the caller treats failures as
// best-effort.
func (s *HTTPSender) SendPush(ctx context.Context, token, title, body string, data map[string]string) error {
	payload, err := json.Marshal(pushPayload{Token: token, Title: title, Body: body, Data: data})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "key="+s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push vendor returned %d", resp.StatusCode)
	}
	return nil
}
