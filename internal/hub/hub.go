// Pawprint - APRS live map core for Direwolf and AllStarLink nodes
// Copyright 2026 KI9NG
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ki9ng/pawprint

// Package hub fans out store mutations to live WebSocket subscribers.
//
// Producers enqueue events with a non-blocking Publish; the hub goroutine
// delivers them to every attached client. A client whose buffer fills is
// detached rather than allowed to stall the others, so a slow or dead viewer
// never backpressures ingestion.
package hub

import (
	"context"
	"sort"
	"sync"

	"github.com/ki9ng/pawprint/internal/logging"
	"github.com/ki9ng/pawprint/internal/metrics"
	"github.com/ki9ng/pawprint/internal/models"
)

// ShutdownReason identifies why the hub stopped, for log filtering.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// SnapshotFunc supplies the current model for the init event a subscriber
// receives on attach.
type SnapshotFunc func() models.Snapshot

// Hub maintains the set of attached clients and broadcasts events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan models.Event
	Register   chan *Client
	Unregister chan *Client
	snapshot   SnapshotFunc
	mu         sync.RWMutex

	// done is closed when Serve returns, so client pumps torn down during
	// shutdown never block handing themselves back.
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a hub. snapshot may be nil, in which case subscribers receive
// no init event.
func New(snapshot SnapshotFunc) *Hub {
	return &Hub{
		broadcast:  make(chan models.Event, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		snapshot:   snapshot,
		done:       make(chan struct{}),
	}
}

// Publish enqueues one event for broadcast. Never blocks: if the queue is
// full the event is dropped and counted. Store mutations call this inside
// their critical section, so queue order matches mutation order.
func (h *Hub) Publish(ev models.Event) {
	select {
	case h.broadcast <- ev:
		metrics.EventsPublished.WithLabelValues(ev.Type).Inc()
	default:
		metrics.EventsDropped.Inc()
		logging.Warn().Str("event_type", ev.Type).Msg("broadcast queue full, dropping event")
	}
}

// Serve runs the hub until the context is cancelled, then closes every
// client and returns.
//
// Channel handling is priority ordered: shutdown first, then client
// lifecycle, then broadcast. When Go's select has multiple ready channels it
// picks randomly; the staged selects keep client state consistent before any
// event is delivered.
func (h *Hub) Serve(ctx context.Context) error {
	defer h.stopOnce.Do(func() { close(h.done) })
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.registerClient(client)
			continue
		case client := <-h.Unregister:
			h.unregisterClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		case ev := <-h.broadcast:
			h.broadcastToClients(ev)
		}
	}
}

func (h *Hub) String() string {
	return "event-hub"
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	// The init snapshot goes straight into the client's empty buffer so the
	// viewer starts from current state before any live event arrives.
	if h.snapshot != nil {
		select {
		case client.send <- models.Event{Type: models.EventInit, Data: h.snapshot()}:
		default:
		}
	}

	metrics.Subscribers.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("subscriber attached")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.Subscribers.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("subscriber detached")
}

// broadcastToClients delivers one event to every client in ID order. A
// client whose buffer is full is detached here; its pumps notice the closed
// channel and tear the connection down.
func (h *Hub) broadcastToClients(ev models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- ev:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.EventsDropped.Inc()
		logging.Warn().Uint64("client_id", client.id).Msg("detached slow subscriber")
	}
	if len(toRemove) > 0 {
		metrics.Subscribers.Set(float64(len(h.clients)))
	}
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()

	reason := ShutdownReasonContextCanceled
	if ctx.Err() == context.DeadlineExceeded {
		reason = ShutdownReasonContextDeadline
	}

	logging.Info().
		Str("component", "event-hub").
		Str("reason", string(reason)).
		Int("clients_closed", clientCount).
		Msg("event hub stopped")
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.Subscribers.Set(0)
}

// ClientCount returns the number of attached subscribers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
