package push

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	amqp "github.com/rabbitmq/amqp091-go"

	"consultly/internal/notify"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	fails bool
}

func (s *recordingSender) SendPush(_ context.Context, token, _, _ string, _ map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, token)
	if s.fails {
		return context.DeadlineExceeded
	}
	return nil
}

func (s *recordingSender) tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type stubConsumer struct {
	ch chan amqp.Delivery
}

func (c *stubConsumer) Deliveries(context.Context) (<-chan amqp.Delivery, error) {
	return c.ch, nil
}

func delivery(t *testing.T, ev notify.PushEvent) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return amqp.Delivery{Body: body}
}

func TestWorkerFansOutToAllTokens(t *testing.T) {
	mr := miniredis.RunT(t)
	tokens := NewTokenStore(mr.Addr(), "")
	t.Cleanup(func() { _ = tokens.Close() })

	ctx := context.Background()
	if err := tokens.Register(ctx, "user-1", "tok-a"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := tokens.Register(ctx, "user-1", "tok-b"); err != nil {
		t.Fatalf("register: %v", err)
	}

	sender := &recordingSender{}
	consumer := &stubConsumer{ch: make(chan amqp.Delivery, 4)}
	worker := NewWorker(WorkerConfig{Consumer: consumer, Tokens: tokens, Sender: sender})

	consumer.ch <- delivery(t, notify.PushEvent{UserID: "user-1", Type: "booking_accepted", Title: "Booking accepted", Body: "ok"})
	close(consumer.ch)

	if err := worker.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	sent := sender.tokens()
	if len(sent) != 2 {
		t.Fatalf("sent to %v, want both tokens", sent)
	}
}

func TestWorkerSkipsUsersWithoutTokens(t *testing.T) {
	mr := miniredis.RunT(t)
	tokens := NewTokenStore(mr.Addr(), "")
	t.Cleanup(func() { _ = tokens.Close() })

	sender := &recordingSender{}
	consumer := &stubConsumer{ch: make(chan amqp.Delivery, 4)}
	worker := NewWorker(WorkerConfig{Consumer: consumer, Tokens: tokens, Sender: sender})

	consumer.ch <- delivery(t, notify.PushEvent{UserID: "nobody", Type: "message"})
	close(consumer.ch)

	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := sender.tokens(); len(got) != 0 {
		t.Fatalf("sent = %v, want none", got)
	}
}

func TestWorkerDropsMalformedEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	tokens := NewTokenStore(mr.Addr(), "")
	t.Cleanup(func() { _ = tokens.Close() })

	sender := &recordingSender{}
	consumer := &stubConsumer{ch: make(chan amqp.Delivery, 4)}
	worker := NewWorker(WorkerConfig{Consumer: consumer, Tokens: tokens, Sender: sender})

	consumer.ch <- amqp.Delivery{Body: []byte("{broken")}
	close(consumer.ch)

	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := sender.tokens(); len(got) != 0 {
		t.Fatalf("sent = %v, want none", got)
	}
}

func TestWorkerStopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	tokens := NewTokenStore(mr.Addr(), "")
	t.Cleanup(func() { _ = tokens.Close() })

	consumer := &stubConsumer{ch: make(chan amqp.Delivery)}
	worker := NewWorker(WorkerConfig{Consumer: consumer, Tokens: tokens, Sender: &recordingSender{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}
