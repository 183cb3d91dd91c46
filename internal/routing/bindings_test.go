// ABOUTME: Tests for the conversation-to-session binding store
// ABOUTME: Verifies stale entries are dropped when either side rebinds

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindAndLookup(t *testing.T) {
	b := NewBindings()
	key := ConversationKey{ChannelID: "telegram", ConversationID: "12345"}
	b.Bind(key, "sess-1")

	id, ok := b.SessionFor(key)
	assert.True(t, ok)
	assert.Equal(t, "sess-1", id)

	back, ok := b.ConversationFor("sess-1")
	assert.True(t, ok)
	assert.Equal(t, key, back)

	_, ok = b.SessionFor(ConversationKey{ChannelID: "telegram", ConversationID: "999"})
	assert.False(t, ok)
}

func TestRebindConversationDropsOldSession(t *testing.T) {
	b := NewBindings()
	key := ConversationKey{ChannelID: "telegram", ConversationID: "12345"}
	b.Bind(key, "sess-old")
	b.Bind(key, "sess-new")

	id, _ := b.SessionFor(key)
	assert.Equal(t, "sess-new", id)

	_, ok := b.ConversationFor("sess-old")
	assert.False(t, ok, "old session should be unbound")
}

func TestRebindSessionDropsOldConversation(t *testing.T) {
	b := NewBindings()
	keyA := ConversationKey{ChannelID: "telegram", ConversationID: "a"}
	keyB := ConversationKey{ChannelID: "matrix", ConversationID: "b"}
	b.Bind(keyA, "sess-1")
	b.Bind(keyB, "sess-1")

	_, ok := b.SessionFor(keyA)
	assert.False(t, ok, "first conversation should be unbound")

	back, ok := b.ConversationFor("sess-1")
	assert.True(t, ok)
	assert.Equal(t, keyB, back)
}

func TestUnbind(t *testing.T) {
	b := NewBindings()
	key := ConversationKey{ChannelID: "telegram", ConversationID: "12345"}
	b.Bind(key, "sess-1")
	b.Unbind(key)

	_, ok := b.SessionFor(key)
	assert.False(t, ok)
	_, ok = b.ConversationFor("sess-1")
	assert.False(t, ok)

	// Unbinding an unknown key is a no-op.
	b.Unbind(ConversationKey{ChannelID: "x", ConversationID: "y"})
}
