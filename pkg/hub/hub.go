// Package hub fans broadcast messages out to websocket clients and
// in-process stream subscribers.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// sendBuffer is the per-member queue depth before a member counts as slow.
const sendBuffer = 16

// MessageType selects the websocket frame type a message is written as.
type MessageType int

const (
	JSONMessage   MessageType = iota // status updates
	BinaryMessage                    // JPEG frames
)

// Message is a unit of broadcast. Data is shared by every member and must
// not be modified after Broadcast.
type Message struct {
	Type MessageType
	Data []byte
}

// Hub maintains the set of active members and broadcasts messages to them.
// Members are websocket Clients or in-process Subscriptions; both are just a
// buffered send channel from the hub's point of view.
type Hub struct {
	logger *slog.Logger

	members    map[chan Message]struct{}
	broadcast  chan Message
	register   chan chan Message
	unregister chan chan Message
	done       chan struct{}

	mu      sync.RWMutex
	count   int
	last    Message
	hasLast bool
	dropped uint64
}

// New creates a new Hub
func New(name string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger.With("hub", name),
		members:    make(map[chan Message]struct{}),
		broadcast:  make(chan Message, 64),
		register:   make(chan chan Message),
		unregister: make(chan chan Message),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is cancelled, closing every
// member's channel.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		h.count = 0
		h.mu.Unlock()
		for ch := range h.members {
			close(ch)
			delete(h.members, ch)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ch := <-h.register:
			h.members[ch] = struct{}{}
			h.setCount()
			h.logger.Debug("member joined", "members", len(h.members))

		case ch := <-h.unregister:
			if _, ok := h.members[ch]; ok {
				delete(h.members, ch)
				close(ch)
			}
			h.setCount()
			h.logger.Debug("member left", "members", len(h.members))

		case msg := <-h.broadcast:
			for ch := range h.members {
				select {
				case ch <- msg:
				default:
					// Member is too slow; drop it
					delete(h.members, ch)
					close(ch)
					h.mu.Lock()
					h.dropped++
					h.mu.Unlock()
					h.logger.Warn("dropped slow member")
				}
			}
			h.setCount()
		}
	}
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.members)
	h.mu.Unlock()
}

// join adds a new member and returns its channel. If the hub has stopped the
// returned channel is already closed.
func (h *Hub) join() chan Message {
	ch := make(chan Message, sendBuffer)
	select {
	case h.register <- ch:
	case <-h.done:
		close(ch)
	}
	return ch
}

// leave removes a member. It is safe to call after the hub dropped it or
// stopped.
func (h *Hub) leave(ch chan Message) {
	select {
	case h.unregister <- ch:
	case <-h.done:
	}
}

// Broadcast sends a message to all members without blocking
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	h.last, h.hasLast = msg, true
	h.mu.Unlock()

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Debug("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(Message{Type: JSONMessage, Data: data})
	return nil
}

// BroadcastBinary broadcasts binary data (camera frames)
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(Message{Type: BinaryMessage, Data: data})
}

// Last returns the most recent broadcast message, if any
func (h *Hub) Last() (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.hasLast
}

// ClientCount returns the number of connected members
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dropped returns how many slow members have been disconnected
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
