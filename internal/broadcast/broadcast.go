// Package broadcast fans an Alert out to every connected real-time
// subscriber over a websocket connection.
package broadcast

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weatheralertd/weatheralertd/internal/logging"
	"github.com/weatheralertd/weatheralertd/internal/model"
)

// subscriber wraps one live websocket connection.
type subscriber struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(v)
}

// Hub tracks live websocket subscribers and fans alerts out to them.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
	log  *logging.Logger
}

// New constructs an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[string]*subscriber), log: logging.New("broadcast")}
}

// Register adds conn as a live subscriber and returns its handle ID, to be
// passed to Unregister on disconnect.
func (h *Hub) Register(conn *websocket.Conn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.subs[id] = &subscriber{id: id, conn: conn}
	h.mu.Unlock()
	return id
}

// Unregister removes a subscriber by handle ID, closing its connection.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	s, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		_ = s.conn.Close()
	}
}

// SubscriberCount returns the number of currently registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type wireMessage struct {
	Type string      `json:"type"`
	Data model.Alert `json:"data"`
}

// Broadcast serializes alert and pushes it to every live subscriber. A
// failing subscriber is dropped from the set but does not abort the
// broadcast for the rest; an empty subscriber set is a no-op success.
func (h *Hub) Broadcast(alert model.Alert) {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	msg := wireMessage{Type: "WEATHER_ALERT", Data: alert}
	for _, s := range targets {
		if err := s.send(msg); err != nil {
			h.log.Printf("subscriber %s send failed, dropping: %v", s.id, err)
			h.Unregister(s.id)
		}
	}
}
