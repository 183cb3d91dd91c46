// ABOUTME: Event broadcaster fanning server push frames to WebSocket clients
// ABOUTME: Subscribers get buffered channels; slow clients drop frames

package gateway

import (
	"encoding/json"
	"sync"
)

// subscriberBuffer is the per-client event queue depth.
const subscriberBuffer = 64

// Broadcaster fans out serialized event frames to subscribed connections.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan []byte]struct{})}
}

// Subscribe registers a new listener. Call the returned cancel func when the
// connection closes.
func (b *Broadcaster) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast sends an event frame to every subscriber. Frames to subscribers
// with a full buffer are dropped rather than blocking the sender.
func (b *Broadcaster) Broadcast(event string, payload any) {
	frame, err := json.Marshal(Event{Type: "event", Event: event, Payload: payload})
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Close ends all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
