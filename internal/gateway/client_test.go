package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientReceivesEvents(t *testing.T) {
	hub, srv := newTestHub(t)
	client := NewClient(ClientConfig{URL: wsURL(srv), Token: "user:alice"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	var ev Event
	select {
	case ev = <-client.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auth ack")
	}
	if ev.Type != "auth_ok" {
		t.Fatalf("first event = %q, want auth_ok", ev.Type)
	}

	hub.Dispatch("alice", Event{Type: "notification"})
	select {
	case ev = <-client.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
	if ev.Type != "notification" {
		t.Fatalf("event = %q, want notification", ev.Type)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop on cancel")
	}
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	var dials atomic.Int32
	hub := NewHub(HubConfig{Verifier: stubVerifier{}, AuthTimeout: 2 * time.Second})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		hub.HandleWS(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{
		URL:            wsURL(srv),
		Token:          "user:alice",
		ReconnectDelay: 50 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	select {
	case <-client.Events():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first session")
	}

	// Drop the connection server-side; the client must dial again after the
	// fixed delay.
	srv.CloseClientConnections()

	deadline := time.Now().Add(3 * time.Second)
	for dials.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("client did not reconnect, dials = %d", dials.Load())
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop on cancel")
	}
}
