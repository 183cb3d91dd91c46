// ABOUTME: Single-goroutine processor for inbound channel messages
// ABOUTME: Binds conversations to sessions, runs turns, and sends replies

package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/chaihq/chai/internal/agent"
	"github.com/chaihq/chai/internal/channels"
	"github.com/chaihq/chai/internal/llm"
	"github.com/chaihq/chai/internal/routing"
)

// newSessionTrigger resets a conversation's history. Case-insensitive.
const newSessionTrigger = "/new"

// processInbound drains the inbound queue until ctx ends. One goroutine, so
// per-conversation message order is preserved.
func (g *Gateway) processInbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-g.inbound:
			g.handleInbound(ctx, msg)
		}
	}
}

func (g *Gateway) handleInbound(ctx context.Context, msg channels.InboundMessage) {
	key := routing.ConversationKey{ChannelID: msg.ChannelID, ConversationID: msg.ConversationID}

	if strings.EqualFold(strings.TrimSpace(msg.Text), newSessionTrigger) {
		oldID, hadOld := g.bindings.SessionFor(key)
		fresh := g.sessions.Create()
		g.bindings.Bind(key, fresh.ID)
		if hadOld {
			g.sessions.Remove(oldID)
		}
		g.sendToChannel(ctx, key, "session restarted. next message will start with a clean history.")
		return
	}

	sessionID, ok := g.bindings.SessionFor(key)
	if !ok {
		sessionID = g.sessions.Create().ID
		g.bindings.Bind(key, sessionID)
	}

	userMsg := llm.ChatMessage{Role: "user", Content: msg.Text}
	if err := g.sessions.Append(sessionID, userMsg); err != nil {
		g.logger.Warn("appending inbound message failed", "session", sessionID, "error", err)
		return
	}
	g.broadcastSessionMessage(sessionID, "user", msg.Text, &key)

	result, err := g.runTurn(ctx, sessionID, "", "")
	if err != nil {
		g.logger.Warn("agent turn failed", "channel", msg.ChannelID, "error", err)
		g.sendToChannel(ctx, key, fmt.Sprintf("something went wrong: %v. check the gateway logs for details.", err))
		return
	}

	reply := strings.TrimSpace(result.Content)
	if reply == "" {
		return
	}
	g.broadcastSessionMessage(sessionID, "assistant", result.Content, &key)
	g.sendToChannel(ctx, key, result.Content)
}

// runTurn resolves backend and model, builds the system context, and runs
// one agent turn against the session.
func (g *Gateway) runTurn(ctx context.Context, sessionID, backendOverride, modelOverride string) (*agent.TurnResult, error) {
	backend := g.backend(backendOverride)
	return agent.RunTurn(
		ctx,
		g.sessions,
		sessionID,
		backend,
		g.model(modelOverride),
		g.systemContext(),
		g.toolDefs,
		g.executor,
		nil,
	)
}

func (g *Gateway) sendToChannel(ctx context.Context, key routing.ConversationKey, text string) {
	handle := g.registry.Get(key.ChannelID)
	if handle == nil {
		g.logger.Debug("no channel handle for reply", "channel", key.ChannelID)
		return
	}
	if err := handle.SendMessage(ctx, key.ConversationID, text); err != nil {
		g.logger.Warn("channel send failed", "channel", key.ChannelID, "error", err)
	}
}

// broadcastSessionMessage pushes a session.message event to all WebSocket
// clients. key is nil when the session has no channel binding.
func (g *Gateway) broadcastSessionMessage(sessionID, role, content string, key *routing.ConversationKey) {
	payload := map[string]any{
		"sessionId":      sessionID,
		"role":           role,
		"content":        content,
		"channelId":      nil,
		"conversationId": nil,
	}
	if key != nil {
		payload["channelId"] = key.ChannelID
		payload["conversationId"] = key.ConversationID
	}
	g.events.Broadcast("session.message", payload)
}
