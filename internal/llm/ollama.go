// ABOUTME: Ollama HTTP client for model listing and chat completion
// ABOUTME: Streaming chat parses the NDJSON /api/chat response line by line

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultOllamaBaseURL is the local Ollama server address.
const DefaultOllamaBaseURL = "http://127.0.0.1:11434"

// OllamaClient talks to an Ollama server's HTTP API.
type OllamaClient struct {
	baseURL string
	client  *http.Client
}

// NewOllamaClient creates a client for the given base URL, or the local
// default when baseURL is empty.
func NewOllamaClient(baseURL string) *OllamaClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultOllamaBaseURL
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// Name implements Backend.
func (c *OllamaClient) Name() string { return "ollama" }

type ollamaTagsResponse struct {
	Models []Model `json:"models"`
}

// ListModels calls GET /api/tags.
func (c *OllamaClient) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, apiError("ollama", res)
	}
	var data ollamaTagsResponse
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding tags response: %w", err)
	}
	return data.Models, nil
}

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []ChatMessage    `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// Chat calls POST /api/chat with stream disabled.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []ChatMessage, tools []ToolDefinition) (*ChatResponse, error) {
	res, err := c.postChat(ctx, ollamaChatRequest{Model: model, Messages: messages, Tools: tools})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	var data ChatResponse
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	return &data, nil
}

type ollamaStreamEvent struct {
	Message *ChatMessage `json:"message"`
	Done    bool         `json:"done"`
}

// ChatStream calls POST /api/chat with stream enabled and parses NDJSON.
// Content deltas go to onChunk; tool calls are taken from the last chunk
// that carries them.
func (c *OllamaClient) ChatStream(ctx context.Context, model string, messages []ChatMessage, tools []ToolDefinition, onChunk func(string)) (*ChatResponse, error) {
	res, err := c.postChat(ctx, ollamaChatRequest{Model: model, Messages: messages, Stream: true, Tools: tools})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var content strings.Builder
	var toolCalls []ToolCall
	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event ollamaStreamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		if event.Message != nil {
			if event.Message.Content != "" {
				if onChunk != nil {
					onChunk(event.Message.Content)
				}
				content.WriteString(event.Message.Content)
			}
			if len(event.Message.ToolCalls) > 0 {
				toolCalls = event.Message.ToolCalls
			}
		}
		if event.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading chat stream: %w", err)
	}
	return &ChatResponse{
		Message: &ChatMessage{Role: "assistant", Content: content.String(), ToolCalls: toolCalls},
		Done:    true,
	}, nil
}

func (c *OllamaClient) postChat(ctx context.Context, body ollamaChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		return nil, apiError("ollama", res)
	}
	return res, nil
}

// apiError drains up to a short excerpt of the body for the error message.
func apiError(backend string, res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return &APIError{Backend: backend, Status: res.StatusCode, Body: strings.TrimSpace(string(body))}
}