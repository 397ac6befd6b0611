package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	// wsWriteWait bounds a single frame write to a client.
	wsWriteWait = 10 * time.Second
	// wsSendBuffer is the per-client outbound queue; a consumer that falls
	// further behind than this drops updates rather than stalling the hub.
	wsSendBuffer = 64
)

var errSendBufferFull = errors.New("client send buffer full")

// wsControlMessage is a subscribe or unsubscribe request from the browser.
type wsControlMessage struct {
	Type    string `json:"type"` // "subscribe" or "unsubscribe"
	Channel string `json:"channel"`
}

type wsAck struct {
	Type      string    `json:"type"`
	Channel   string    `json:"channel,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// wsClient adapts one websocket connection to the broadcast hub. Send never
// blocks: the write pump drains the buffered queue and slow consumers lose
// updates instead of backing up the publisher.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger
}

func (c *wsClient) ID() string { return c.id }

func (c *wsClient) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

// writePump serializes all frame writes for the connection.
func (c *wsClient) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				c.log.Debug().Err(err).Msg("Websocket write failed")
				return
			}
		}
	}
}

func (c *wsClient) ack(ackType, channel, message string) {
	payload, err := json.Marshal(wsAck{
		Type:      ackType,
		Channel:   channel,
		Message:   message,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}
	if err := c.Send(payload); err != nil {
		c.log.Debug().Err(err).Str("ack", ackType).Msg("Dropped websocket ack")
	}
}

// handleWebsocket upgrades the connection and runs its read loop. Subscribe
// and unsubscribe requests arrive as JSON control messages; everything else
// the client receives comes from the hub.
// GET /ws
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		log:  s.log.With().Str("component", "ws_client").Logger(),
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	s.log.Info().Str("client_id", client.id).Msg("Websocket client connected")

	go client.writePump(ctx)

	defer func() {
		s.hub.Disconnect(client)
		conn.Close(websocket.StatusNormalClosure, "")
		s.log.Info().Str("client_id", client.id).Msg("Websocket client disconnected")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg wsControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.ack("error", "", "invalid control message")
			continue
		}

		switch msg.Type {
		case "subscribe":
			if msg.Channel == "" {
				client.ack("error", "", "channel is required")
				continue
			}
			s.hub.Subscribe(client, msg.Channel)
			client.ack("subscribed", msg.Channel, "")
		case "unsubscribe":
			s.hub.Unsubscribe(client, msg.Channel)
			client.ack("unsubscribed", msg.Channel, "")
		default:
			client.ack("error", "", "unknown message type")
		}
	}
}
