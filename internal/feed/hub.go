// Package feed pushes new webhook log entries to connected WebSocket clients.
package feed

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ashureev/lead-agent/internal/domain"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Frame is the JSON envelope written to subscribers.
type Frame struct {
	Type     string           `json:"type"`
	Username string           `json:"username,omitempty"`
	Entry    *domain.LogEntry `json:"entry,omitempty"`
}

// Subscriber receives the frames its principal may see.
type Subscriber struct {
	principal domain.Principal
	ch        chan []byte
}

// Frames returns the subscriber's outgoing queue.
func (s *Subscriber) Frames() <-chan []byte {
	return s.ch
}

// Hub fans log entries out to subscribers. Admins see every entry, other
// principals only entries carrying their username as user id.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber for p.
func (h *Hub) Subscribe(p domain.Principal) *Subscriber {
	s := &Subscriber{principal: p, ch: make(chan []byte, h.buffer)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("Log feed subscriber registered", "username", p.Username, "role", p.Role)
	return s
}

// Unsubscribe removes s. It is safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		h.logger.Info("Log feed subscriber unregistered", "username", s.principal.Username)
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish queues the entry for every subscriber allowed to see it. Full
// queues drop the frame.
func (h *Hub) Publish(entry domain.LogEntry) {
	data, err := json.Marshal(Frame{Type: "log", Entry: &entry})
	if err != nil {
		h.logger.Error("Failed to encode log frame", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		if !s.principal.CanAccessUser(entry.UserID) {
			continue
		}
		select {
		case s.ch <- data:
		default:
			h.logger.Warn("Log feed subscriber too slow, dropping frame",
				"username", s.principal.Username,
				"entry_id", entry.ID,
			)
		}
	}
}
