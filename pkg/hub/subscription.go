package hub

import "sync"

// Subscription is an in-process hub member, used by the MJPEG stream.
type Subscription struct {
	hub  *Hub
	ch   chan Message
	once sync.Once
}

// Subscribe joins the hub. The channel returned by C is closed when the
// subscription is cancelled, when the member is dropped for being slow, or
// when the hub stops.
func (h *Hub) Subscribe() *Subscription {
	return &Subscription{hub: h, ch: h.join()}
}

// C returns the message channel
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Cancel leaves the hub. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.leave(s.ch)
	})
}
