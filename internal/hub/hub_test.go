// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

package hub

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/ki9ng/pawprint/internal/logging"
	"github.com/ki9ng/pawprint/internal/models"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

func setupHub(t *testing.T, snapshot SnapshotFunc) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New(snapshot)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Serve(ctx) }()
	time.Sleep(10 * time.Millisecond)
	return h, cancel
}

func createTestClient(h *Hub, buffer int) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: h, conn: nil, send: make(chan models.Event, buffer)}
}

func registerClient(h *Hub, client *Client) {
	h.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func drainEvents(client *Client, timeout time.Duration) []models.Event {
	var out []models.Event
	for {
		select {
		case ev, ok := <-client.send:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-time.After(timeout):
			return out
		}
	}
}

func TestClientReceivesInitSnapshotOnAttach(t *testing.T) {
	snapshot := func() models.Snapshot {
		return models.Snapshot{RetentionHours: 168, FeedConnected: true}
	}
	h, cancel := setupHub(t, snapshot)
	defer cancel()

	client := createTestClient(h, 16)
	registerClient(h, client)

	select {
	case ev := <-client.send:
		if ev.Type != models.EventInit {
			t.Fatalf("first event type = %q, want init", ev.Type)
		}
		snap := ev.Data.(models.Snapshot)
		if snap.RetentionHours != 168 || !snap.FeedConnected {
			t.Errorf("init snapshot = %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("no init event received")
	}
}

func TestPublishReachesAllClients(t *testing.T) {
	h, cancel := setupHub(t, nil)
	defer cancel()

	a := createTestClient(h, 16)
	b := createTestClient(h, 16)
	registerClient(h, a)
	registerClient(h, b)

	h.Publish(models.Event{Type: models.EventStationUpdate, Data: models.Station{Callsign: "N9XYZ-9"}})
	time.Sleep(20 * time.Millisecond)

	for name, client := range map[string]*Client{"a": a, "b": b} {
		select {
		case ev := <-client.send:
			if ev.Type != models.EventStationUpdate {
				t.Errorf("client %s: event type = %q", name, ev.Type)
			}
		default:
			t.Errorf("client %s received nothing", name)
		}
	}
}

func TestSlowSubscriberIsDetachedNotBlocking(t *testing.T) {
	h, cancel := setupHub(t, nil)
	defer cancel()

	slow := createTestClient(h, 1)
	fast := createTestClient(h, 64)
	registerClient(h, slow)
	registerClient(h, fast)

	// The slow client's single-slot buffer fills on the first event; the
	// second delivery detaches it.
	for i := 0; i < 5; i++ {
		h.Publish(models.Event{Type: models.EventTrackPoint, Data: i})
	}
	time.Sleep(50 * time.Millisecond)

	if got := h.ClientCount(); got != 1 {
		t.Errorf("client count = %d, want 1 after slow subscriber detach", got)
	}
	if got := len(drainEvents(fast, 50*time.Millisecond)); got != 5 {
		t.Errorf("fast client received %d events, want 5", got)
	}
}

func TestEventOrderPreservedPerClient(t *testing.T) {
	h, cancel := setupHub(t, nil)
	defer cancel()

	client := createTestClient(h, 64)
	registerClient(h, client)

	for i := 0; i < 10; i++ {
		h.Publish(models.Event{Type: models.EventTrackPoint, Data: i})
	}
	time.Sleep(50 * time.Millisecond)

	events := drainEvents(client, 50*time.Millisecond)
	if len(events) != 10 {
		t.Fatalf("received %d events, want 10", len(events))
	}
	for i, ev := range events {
		if ev.Data.(int) != i {
			t.Fatalf("event %d carried %v, order broken", i, ev.Data)
		}
	}
}

func TestUnregisterClosesSendChannel(t *testing.T) {
	h, cancel := setupHub(t, nil)
	defer cancel()

	client := createTestClient(h, 16)
	registerClient(h, client)
	h.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	if _, ok := <-client.send; ok {
		t.Error("send channel still open after unregister")
	}
	if got := h.ClientCount(); got != 0 {
		t.Errorf("client count = %d, want 0", got)
	}
}

func TestServeShutdownClosesAllClients(t *testing.T) {
	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(h, 16)
	registerClient(h, client)

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if got := h.ClientCount(); got != 0 {
		t.Errorf("client count = %d, want 0 after shutdown", got)
	}
	if _, ok := <-client.send; ok {
		t.Error("client send channel still open after shutdown")
	}
}

func TestDetachDoesNotBlockAfterShutdown(t *testing.T) {
	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx) }()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(h, 16)
	registerClient(h, client)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	// A read pump torn down by the shutdown still runs its deferred detach,
	// with nothing left draining Unregister.
	finished := make(chan struct{})
	go func() {
		client.detach()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("detach blocked after hub shutdown")
	}
}
