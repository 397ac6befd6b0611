// Package broadcast implements a channel-keyed publish/subscribe registry
// over opaque client handles. It is transport-agnostic: the websocket layer
// wraps connections in the Client interface and the pollers only ever see
// channel names.
package broadcast

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Client is an opaque handle to one connected consumer. Send must be safe
// for concurrent use; a returned error marks the client as broken but the
// hub leaves removal to the transport's close/error handling.
type Client interface {
	ID() string
	Send(payload []byte) error
}

// Update is the outbound envelope published to subscribers.
type Update struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Hub maintains channel subscription sets and fans out published updates.
type Hub struct {
	mu sync.RWMutex
	// channel name -> client ID -> handle
	channels map[string]map[string]Client
	// client ID -> channel names joined, for symmetric disconnect cleanup
	memberships map[string]map[string]struct{}
	// client ID -> handle
	clients map[string]Client

	log zerolog.Logger
	now func() time.Time
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		channels:    make(map[string]map[string]Client),
		memberships: make(map[string]map[string]struct{}),
		clients:     make(map[string]Client),
		log:         log.With().Str("component", "broadcast").Logger(),
		now:         time.Now,
	}
}

// Subscribe adds the client to a channel. Subscribing twice is a no-op.
// Channels spring into existence on first subscribe and are dropped again
// when their last subscriber leaves.
func (h *Hub) Subscribe(client Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[string]Client)
		h.channels[channel] = subs
	}
	subs[client.ID()] = client

	joined, ok := h.memberships[client.ID()]
	if !ok {
		joined = make(map[string]struct{})
		h.memberships[client.ID()] = joined
	}
	joined[channel] = struct{}{}
	h.clients[client.ID()] = client

	h.log.Debug().
		Str("client", client.ID()).
		Str("channel", channel).
		Msg("Client subscribed")
}

// Unsubscribe removes the client from a channel. Unknown edges are ignored.
func (h *Hub) Unsubscribe(client Client, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeEdge(client.ID(), channel)
}

// Disconnect removes the client from every channel it joined.
func (h *Hub) Disconnect(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := client.ID()
	for channel := range h.memberships[id] {
		h.removeEdge(id, channel)
	}
	delete(h.memberships, id)
	delete(h.clients, id)

	h.log.Debug().Str("client", id).Msg("Client disconnected from all channels")
}

// removeEdge deletes one client-channel edge. Caller holds h.mu.
func (h *Hub) removeEdge(clientID, channel string) {
	if subs, ok := h.channels[channel]; ok {
		delete(subs, clientID)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
	if joined, ok := h.memberships[clientID]; ok {
		delete(joined, channel)
		if len(joined) == 0 {
			delete(h.memberships, clientID)
			delete(h.clients, clientID)
		}
	}
}

// Publish sends data to every current subscriber of the channel, wrapped in
// an update envelope. A failure sending to one client is logged and does not
// affect delivery to the others. Returns the number of successful deliveries.
func (h *Hub) Publish(channel string, data interface{}) int {
	payload, err := json.Marshal(Update{
		Type:      "update",
		Channel:   channel,
		Data:      data,
		Timestamp: h.now(),
	})
	if err != nil {
		h.log.Error().Err(err).Str("channel", channel).Msg("Failed to marshal update")
		return 0
	}

	// Snapshot subscribers so sends happen outside the lock.
	h.mu.RLock()
	subscribers := make([]Client, 0, len(h.channels[channel]))
	for _, c := range h.channels[channel] {
		subscribers = append(subscribers, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, client := range subscribers {
		if err := client.Send(payload); err != nil {
			h.log.Warn().
				Err(err).
				Str("client", client.ID()).
				Str("channel", channel).
				Msg("Failed to deliver update")
			continue
		}
		delivered++
	}
	return delivered
}

// Subscribers returns the current subscriber count for a channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// ClientCount returns the number of clients with at least one subscription.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
