package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/terminal-bench/gridflow/internal/render"
)

// Subscriber is one websocket frame-stream consumer.
type Subscriber struct {
	ID     uuid.UUID
	Scenes chan render.Scene
	Done   chan struct{}
}

// Hub fans rendered scenes out to websocket subscribers. Sends are
// non-blocking: a slow consumer drops frames rather than stalling the tick.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscriber
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]*Subscriber)}
}

// Subscribe registers a new frame consumer.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:     uuid.New(),
		Scenes: make(chan render.Scene, 4),
		Done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a consumer and releases its channels.
func (h *Hub) Unsubscribe(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[id]; ok {
		close(sub.Done)
		delete(h.subs, id)
	}
}

// Broadcast pushes a scene to every subscriber without blocking.
func (h *Hub) Broadcast(scene render.Scene) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		select {
		case sub.Scenes <- scene:
		case <-sub.Done:
		default:
			// Consumer behind; skip this frame for it.
		}
	}
}

// Close tears down every subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		close(sub.Done)
		delete(h.subs, id)
	}
}

// ServeWS streams scenes over a websocket connection until the client goes
// away or the context ends.
func (h *Hub) ServeWS(ctx context.Context, conn *websocket.Conn) {
	sub := h.Subscribe()
	defer func() {
		h.Unsubscribe(sub.ID)
		conn.Close()
	}()

	// Drain reads so close frames and pings are processed.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case scene := <-sub.Scenes:
			data, err := json.Marshal(scene)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-readDone:
			return
		case <-sub.Done:
			return
		case <-ctx.Done():
			return
		}
	}
}
