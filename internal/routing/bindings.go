// ABOUTME: Bidirectional binding store mapping channel conversations to sessions
// ABOUTME: Binding overwrites stale entries on both sides of the mapping

package routing

import "sync"

// ConversationKey identifies a conversation on a channel.
type ConversationKey struct {
	ChannelID      string
	ConversationID string
}

// Bindings maps channel conversations to sessions and back. A conversation
// is bound to at most one session and vice versa. Safe for concurrent use.
type Bindings struct {
	mu        sync.RWMutex
	toSession map[ConversationKey]string
	toConv    map[string]ConversationKey
}

// NewBindings creates an empty binding store.
func NewBindings() *Bindings {
	return &Bindings{
		toSession: make(map[ConversationKey]string),
		toConv:    make(map[string]ConversationKey),
	}
}

// Bind associates the conversation with the session, dropping any previous
// binding held by either side.
func (b *Bindings) Bind(key ConversationKey, sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.toSession[key]; ok {
		delete(b.toConv, old)
	}
	if old, ok := b.toConv[sessionID]; ok {
		delete(b.toSession, old)
	}
	b.toSession[key] = sessionID
	b.toConv[sessionID] = key
}

// SessionFor returns the session bound to the conversation, if any.
func (b *Bindings) SessionFor(key ConversationKey) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.toSession[key]
	return id, ok
}

// ConversationFor returns the conversation bound to the session, if any.
func (b *Bindings) ConversationFor(sessionID string) (ConversationKey, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	key, ok := b.toConv[sessionID]
	return key, ok
}

// Unbind removes the conversation's binding, if present.
func (b *Bindings) Unbind(key ConversationKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.toSession[key]; ok {
		delete(b.toConv, id)
		delete(b.toSession, key)
	}
}
