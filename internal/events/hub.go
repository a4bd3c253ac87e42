// Package events pushes change notifications to connected websocket
// clients. The hub tracks connections per user; Notify targets only
// the recipients named in the payload, so delivery stays scoped to the
// people the change concerns.
package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kanbo-io/kanbo/internal/service/notifications"
)

type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]bool
	logger  *zap.Logger
}

var _ notifications.Notifier = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]bool),
		logger:  logger,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*Client]bool)
	}
	h.clients[c.userID][c] = true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[c.userID]; ok {
		if conns[c] {
			delete(conns, c)
			close(c.send)
			if len(conns) == 0 {
				delete(h.clients, c.userID)
			}
		}
	}
}

// Notify serializes the payload once and queues it on every live
// connection of every recipient. A connection whose send buffer is full
// is dropped rather than allowed to stall the rest.
func (h *Hub) Notify(ctx context.Context, p notifications.Payload) error {
	msg, err := json.Marshal(p)
	if err != nil {
		return err
	}

	h.mu.RLock()
	stalled := make([]*Client, 0)
	delivered := 0
	for _, userID := range p.Recipients {
		for c := range h.clients[userID] {
			select {
			case c.send <- msg:
				delivered++
			default:
				stalled = append(stalled, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		h.logger.Warn("dropping stalled websocket client",
			zap.String("user", c.userID.String()))
		h.unregister(c)
	}
	if delivered > 0 {
		h.logger.Debug("event pushed",
			zap.String("entity", p.Entity.String()),
			zap.Int("connections", delivered),
		)
	}
	return nil
}
