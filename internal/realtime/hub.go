package realtime

import (
	"sync"

	"github.com/google/uuid"

	redisclient "github.com/greenloop/recircle-backend/internal/clients/redis"
	"github.com/greenloop/recircle-backend/internal/pkg/logger"
)

// Hub fans action events out to connected stream clients. Events
// arrive either directly from the API process or through the redis
// forwarder when verdicts are decided by a worker replica.
type Hub struct {
	mu   sync.RWMutex
	log  *logger.Logger
	subs map[uuid.UUID]map[*Subscriber]bool
}

type Subscriber struct {
	UserID uuid.UUID
	Events chan redisclient.ActionEvent
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:  log.With("component", "RealtimeHub"),
		subs: make(map[uuid.UUID]map[*Subscriber]bool),
	}
}

func (h *Hub) Subscribe(userID uuid.UUID) *Subscriber {
	sub := &Subscriber{
		UserID: userID,
		Events: make(chan redisclient.ActionEvent, 16),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.subs[userID]
	if !ok {
		clients = make(map[*Subscriber]bool)
		h.subs[userID] = clients
	}
	clients[sub] = true
	h.log.Debug("stream client subscribed", "user_id", userID)
	return sub
}

func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.subs[sub.UserID]; ok {
		delete(clients, sub)
		if len(clients) == 0 {
			delete(h.subs, sub.UserID)
		}
	}
	h.log.Debug("stream client unsubscribed", "user_id", sub.UserID)
}

// Publish delivers the event to every subscriber of the owning user.
// Slow clients drop events rather than block the forwarder.
func (h *Hub) Publish(event redisclient.ActionEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[event.UserID] {
		select {
		case sub.Events <- event:
		default:
			h.log.Warn("stream client too slow, dropping event", "user_id", event.UserID, "action_id", event.ActionID)
		}
	}
}
