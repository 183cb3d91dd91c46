// ABOUTME: Agent turn loop: session history in, model reply out
// ABOUTME: Executes tool calls and re-calls the model, bounded to five rounds

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chaihq/chai/internal/llm"
	"github.com/chaihq/chai/internal/session"
)

// maxToolLoop bounds how many times one turn may round-trip tool results.
const maxToolLoop = 5

// ToolExecutor runs a named tool with model-provided JSON arguments.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// TurnResult is the final assistant message of one turn.
type TurnResult struct {
	Content   string
	ToolCalls []llm.ToolCall
}

// RunTurn executes one agent turn against a session. The session's history
// is copied into the request with systemContext prepended when non-empty.
// When the model returns tool calls, each is executed and the results are
// fed back as tool messages until the model stops calling tools or the
// round limit is hit. Streaming (onChunk) applies only to the first call.
// Assistant and tool messages are appended to the session as they occur.
func RunTurn(
	ctx context.Context,
	store *session.Store,
	sessionID string,
	backend llm.Backend,
	model string,
	systemContext string,
	tools []llm.ToolDefinition,
	executor ToolExecutor,
	onChunk func(string),
) (*TurnResult, error) {
	logger := slog.Default().With("component", "agent")

	history, err := store.Messages(sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	messages := make([]llm.ChatMessage, 0, len(history)+1)
	if systemContext != "" {
		messages = append(messages, llm.ChatMessage{Role: "system", Content: systemContext})
	}
	messages = append(messages, history...)

	if model == "" {
		model = llm.DefaultModel(backend.Name())
		logger.Warn("configured model was empty, using fallback", "model", model)
	}
	logger.Info("running turn", "session", sessionID, "backend", backend.Name(), "model", model)

	var result TurnResult
	for round := 0; ; round++ {
		var res *llm.ChatResponse
		if onChunk != nil && round == 0 {
			res, err = backend.ChatStream(ctx, model, messages, tools, onChunk)
		} else {
			res, err = backend.Chat(ctx, model, messages, tools)
		}
		if err != nil {
			return nil, err
		}

		result.Content = res.Content()
		result.ToolCalls = res.ToolCalls()

		assistant := llm.ChatMessage{
			Role:      "assistant",
			Content:   result.Content,
			ToolCalls: result.ToolCalls,
		}
		if err := store.Append(sessionID, assistant); err != nil {
			return nil, fmt.Errorf("appending assistant message: %w", err)
		}

		if len(result.ToolCalls) == 0 {
			break
		}
		if round+1 >= maxToolLoop {
			logger.Debug("max tool rounds reached", "session", sessionID)
			break
		}
		if executor == nil {
			logger.Debug("tool calls returned but no executor configured")
			break
		}

		messages = append(messages, assistant)
		for _, call := range result.ToolCalls {
			name := call.Function.Name
			out, execErr := executor.Execute(ctx, name, call.Function.Arguments)
			if execErr != nil {
				logger.Warn("tool failed", "tool", name, "error", execErr)
				out = fmt.Sprintf("error: %v", execErr)
			}
			toolMsg := llm.ChatMessage{Role: "tool", Content: out, ToolName: name}
			messages = append(messages, toolMsg)
			if err := store.Append(sessionID, toolMsg); err != nil {
				return nil, fmt.Errorf("appending tool message: %w", err)
			}
		}
	}

	return &result, nil
}
