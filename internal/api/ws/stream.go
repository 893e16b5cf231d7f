// Package ws streams appended audit entries to observability consumers over
// WebSocket. This is the live half of the audit export boundary; the
// chain-verified history is served by the HTTP API.
package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/warden/internal/audit"
)

// Subscriber provides a stream of payloads published to a channel.
// *redisstore.Client satisfies this interface.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub manages WebSocket connections backed by pub/sub.
type Hub struct {
	sub Subscriber
}

// NewHub creates a new WebSocket hub.
func NewHub(sub Subscriber) *Hub {
	return &Hub{sub: sub}
}

// ServeAudit handles WebSocket connections for the live audit stream.
// Subscribes to the audit events channel and forwards each appended entry
// as a JSON text message.
func (h *Hub) ServeAudit(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	messages, cleanup, err := h.sub.Subscribe(ctx, audit.EventsChannel)
	if err != nil {
		log.Error().Err(err).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}
