package notify

import (
	"context"
	"log/slog"
	"time"

	"consultly/pkg/domain"
	"consultly/pkg/store"
)

// Dispatcher pushes a notification over any live connections the recipient
// currently holds. Implemented by the gateway hub.
type Dispatcher interface {
	DispatchNotification(userID string, n domain.Notification)
}

// Publisher emits events for offline delivery (vendor push worker).
// Implemented by mq.Publisher.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Config wires the fan-out's collaborators. Live and Events are both
// optional; the durable row is the only guaranteed path.
type Config struct {
	Store          store.Store
	Live           Dispatcher
	Events         Publisher
	Logger         *slog.Logger
	PublishTimeout time.Duration
}

// FanOut writes durable notification rows and attempts best-effort live and
// push delivery. The durable insert participates in the caller's store
// transaction; delivery never does.
type FanOut struct {
	store          store.Store
	live           Dispatcher
	events         Publisher
	logger         *slog.Logger
	publishTimeout time.Duration
}

// New constructs the fan-out.
func New(cfg Config) *FanOut {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &FanOut{
		store:          cfg.Store,
		live:           cfg.Live,
		events:         cfg.Events,
		logger:         logger,
		publishTimeout: timeout,
	}
}

// Record durably inserts the notification row through s, which may be a
// transactional store view. An error here must fail the caller's whole
// lifecycle transition.
func (f *FanOut) Record(s store.Store, n *domain.Notification) error {
	return s.CreateNotification(n)
}

// Deliver attempts live dispatch and event publish for an already-recorded
// notification. Failures are logged and never surfaced: the durable row is
// the source of truth for offline clients.
func (f *FanOut) Deliver(ctx context.Context, n domain.Notification) {
	if f.live != nil {
		f.live.DispatchNotification(n.UserID, n)
	}
	if f.events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.publishTimeout)
	defer cancel()
	ev := PushEvent{
		UserID:    n.UserID,
		Type:      string(n.Type),
		Title:     PushTitle(n.Type),
		Body:      n.Message,
		BookingID: n.RelatedID,
		Data:      n.Data,
	}
	if err := f.events.PublishJSON(pubCtx, RoutingKey(n.Type), ev); err != nil {
		f.logger.Warn("publish notification event failed",
			"user", n.UserID, "type", n.Type, "err", err)
	}
}

// Notify records and delivers in one call, for callers outside a lifecycle
// transaction (reminders, direct messages).
func (f *FanOut) Notify(ctx context.Context, userID string, typ domain.NotificationType, message, relatedID string, data map[string]string) (domain.Notification, error) {
	n := domain.Notification{
		UserID:    userID,
		Type:      typ,
		Message:   message,
		RelatedID: relatedID,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := f.store.CreateNotification(&n); err != nil {
		return domain.Notification{}, err
	}
	f.Deliver(ctx, n)
	return n, nil
}
