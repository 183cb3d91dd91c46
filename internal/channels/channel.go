// ABOUTME: Channel handle interface and registry keyed by channel id
// ABOUTME: Inbound messages from every connector flow to one processor

package channels

import (
	"context"
	"sync"
)

// InboundMessage is a user message arriving from a channel, routed to a
// session by the gateway.
type InboundMessage struct {
	ChannelID      string
	ConversationID string
	Text           string
}

// Handle is a running channel connector.
type Handle interface {
	// ID is the channel id, e.g. "telegram".
	ID() string
	// Stop shuts the connector down. Idempotent.
	Stop()
	// SendMessage delivers text to a conversation on the channel.
	SendMessage(ctx context.Context, conversationID, text string) error
}

// Registry maps channel ids to running handles. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Register adds a handle under its id, stopping any previous holder.
func (r *Registry) Register(h Handle) {
	r.mu.Lock()
	old := r.handles[h.ID()]
	r.handles[h.ID()] = h
	r.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

// Get returns the handle for id, or nil.
func (r *Registry) Get(id string) Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handles[id]
}

// IDs returns the registered channel ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	return ids
}

// StopAll stops every registered handle.
func (r *Registry) StopAll() {
	r.mu.RLock()
	handles := make([]Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.RUnlock()
	for _, h := range handles {
		h.Stop()
	}
}
