// ABOUTME: Shared chat types and the Backend interface for LLM servers
// ABOUTME: Ollama and LM Studio clients implement Backend

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned by callers that resolve sessions before a turn.
var ErrSessionNotFound = errors.New("session not found")

// APIError is a non-2xx response from a model server.
type APIError struct {
	Backend string
	Status  int
	Body    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error: %d %s", e.Backend, e.Status, e.Body)
}

// ChatMessage is one message in a chat request or response.
// Assistant messages may carry ToolCalls; tool results carry ToolName.
type ChatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	ToolName  string     `json:"tool_name,omitempty"`
}

// ToolCall is one function call requested by the model.
type ToolCall struct {
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction holds the call target and arguments. Arguments arrive as
// a JSON object from Ollama but some servers send a string; keep the raw form.
type ToolCallFunction struct {
	Index     *int            `json:"index,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolDefinition describes one tool offered to the model (function-calling shape).
type ToolDefinition struct {
	Type     string                 `json:"type"`
	Function ToolFunctionDefinition `json:"function"`
}

// ToolFunctionDefinition is the function half of a tool definition.
type ToolFunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatResponse is the assistant message returned by a backend.
type ChatResponse struct {
	Message *ChatMessage `json:"message"`
	Done    bool         `json:"done"`
}

// Content returns the assistant text, or "" when the response has no message.
func (r *ChatResponse) Content() string {
	if r == nil || r.Message == nil {
		return ""
	}
	return r.Message.Content
}

// ToolCalls returns the parsed tool calls, or nil when there are none.
func (r *ChatResponse) ToolCalls() []ToolCall {
	if r == nil || r.Message == nil {
		return nil
	}
	return r.Message.ToolCalls
}

// Model is one entry from a backend's model list.
type Model struct {
	Name string `json:"name"`
	Size uint64 `json:"size,omitempty"`
}

// Backend is a chat-capable model server.
type Backend interface {
	// Name identifies the backend ("ollama", "lmstudio") for logs and status.
	Name() string

	// ListModels returns the models the server currently offers.
	ListModels(ctx context.Context) ([]Model, error)

	// Chat runs a non-streaming chat completion.
	Chat(ctx context.Context, model string, messages []ChatMessage, tools []ToolDefinition) (*ChatResponse, error)

	// ChatStream runs a streaming chat completion, invoking onChunk for each
	// content delta, and returns the accumulated response.
	ChatStream(ctx context.Context, model string, messages []ChatMessage, tools []ToolDefinition, onChunk func(string)) (*ChatResponse, error)
}

// DefaultModel is the fallback model id per backend when none is configured.
func DefaultModel(backend string) string {
	if backend == "lmstudio" {
		return "gpt-oss-20b"
	}
	return "llama3.2:latest"
}
