// ABOUTME: LM Studio client supporting the OpenAI-compatible and native APIs
// ABOUTME: Endpoint type is fixed at construction; openai supports tools, native does not

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

// DefaultLMStudioBaseURL is the local LM Studio OpenAI-compatible base.
const DefaultLMStudioBaseURL = "http://127.0.0.1:1234/v1"

// LMStudioEndpointType selects which LM Studio API surface to use.
type LMStudioEndpointType string

const (
	// LMStudioOpenAI uses /v1/models and /v1/chat/completions (tools supported).
	LMStudioOpenAI LMStudioEndpointType = "openai"
	// LMStudioNative uses /api/v1/models and /api/v1/chat (no custom tools).
	LMStudioNative LMStudioEndpointType = "native"
)

// LMStudioClient talks to an LM Studio server.
type LMStudioClient struct {
	baseURL      string
	endpointType LMStudioEndpointType
	client       *http.Client
}

// NewLMStudioClient creates a client for the given base URL and endpoint
// type. Empty baseURL uses the local default; empty endpoint type is openai.
func NewLMStudioClient(baseURL string, endpointType LMStudioEndpointType) *LMStudioClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultLMStudioBaseURL
	}
	if endpointType == "" {
		endpointType = LMStudioOpenAI
	}
	return &LMStudioClient{
		baseURL:      strings.TrimRight(baseURL, "/"),
		endpointType: endpointType,
		client:       &http.Client{},
	}
}

// Name implements Backend.
func (c *LMStudioClient) Name() string { return "lmstudio" }

// serverRoot strips the /v1 suffix for native endpoints, which hang off the
// server root rather than the OpenAI base.
func (c *LMStudioClient) serverRoot() string {
	if c.endpointType == LMStudioNative && strings.HasSuffix(c.baseURL, "/v1") {
		return strings.TrimSuffix(c.baseURL, "/v1")
	}
	return c.baseURL
}

// ListModels lists available models for the configured endpoint type.
func (c *LMStudioClient) ListModels(ctx context.Context) ([]Model, error) {
	if c.endpointType == LMStudioNative {
		return c.listModelsNative(ctx)
	}
	return c.listModelsOpenAI(ctx)
}

type openAIModelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *LMStudioClient) listModelsOpenAI(ctx context.Context) ([]Model, error) {
	var data openAIModelsResponse
	if err := c.getJSON(ctx, c.baseURL+"/models", &data); err != nil {
		return nil, err
	}
	models := make([]Model, 0, len(data.Data))
	for _, m := range data.Data {
		models = append(models, Model{Name: m.ID})
	}
	return models, nil
}

type nativeModelsResponse struct {
	Models []struct {
		Key  string `json:"key"`
		Type string `json:"type"`
	} `json:"models"`
}

func (c *LMStudioClient) listModelsNative(ctx context.Context) ([]Model, error) {
	var data nativeModelsResponse
	if err := c.getJSON(ctx, c.serverRoot()+"/api/v1/models", &data); err != nil {
		return nil, err
	}
	var models []Model
	for _, m := range data.Models {
		if m.Type != "llm" {
			continue
		}
		models = append(models, Model{Name: m.Key})
	}
	return models, nil
}

// Chat runs a non-streaming completion.
func (c *LMStudioClient) Chat(ctx context.Context, model string, messages []ChatMessage, tools []ToolDefinition) (*ChatResponse, error) {
	if c.endpointType == LMStudioNative {
		return c.chatNative(ctx, model, messages)
	}
	return c.chatOpenAI(ctx, model, messages, tools)
}

// ChatStream runs a streaming completion. The openai endpoint streams SSE
// deltas; native has no streaming surface here, so it falls back to Chat.
func (c *LMStudioClient) ChatStream(ctx context.Context, model string, messages []ChatMessage, tools []ToolDefinition, onChunk func(string)) (*ChatResponse, error) {
	if c.endpointType == LMStudioNative {
		res, err := c.chatNative(ctx, model, messages)
		if err == nil && onChunk != nil && res.Content() != "" {
			onChunk(res.Content())
		}
		return res, err
	}
	return c.chatOpenAIStream(ctx, model, messages, tools, onChunk)
}

type openAIChatRequest struct {
	Model    string           `json:"model"`
	Messages []openAIMessage  `json:"messages"`
	Stream   bool             `json:"stream,omitempty"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// openAIMessage mirrors ChatMessage with the OpenAI field names. Tool
// results use role "tool" with a name field; arguments are JSON strings.
type openAIMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Name      string           `json:"name,omitempty"`
	ToolCalls []openAIToolCall `json:"tool_calls,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func toOpenAIMessages(messages []ChatMessage) []openAIMessage {
	out := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		om := openAIMessage{Role: m.Role, Content: m.Content, Name: m.ToolName}
		for _, tc := range m.ToolCalls {
			var otc openAIToolCall
			otc.Type = "function"
			otc.Function.Name = tc.Function.Name
			otc.Function.Arguments = string(tc.Function.Arguments)
			om.ToolCalls = append(om.ToolCalls, otc)
		}
		out = append(out, om)
	}
	return out
}

func fromOpenAIToolCalls(calls []openAIToolCall) []ToolCall {
	var out []ToolCall
	for _, c := range calls {
		args := json.RawMessage(c.Function.Arguments)
		if !json.Valid(args) {
			// Some servers double-encode arguments; keep them as a JSON string.
			quoted, _ := json.Marshal(c.Function.Arguments)
			args = quoted
		}
		out = append(out, ToolCall{
			Type:     "function",
			Function: ToolCallFunction{Name: c.Function.Name, Arguments: args},
		})
	}
	return out
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Role      string           `json:"role"`
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *LMStudioClient) chatOpenAI(ctx context.Context, model string, messages []ChatMessage, tools []ToolDefinition) (*ChatResponse, error) {
	body := openAIChatRequest{Model: model, Messages: toOpenAIMessages(messages), Tools: tools}
	res, err := c.postJSON(ctx, c.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	var data openAIChatResponse
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	msg := &ChatMessage{Role: "assistant"}
	if len(data.Choices) > 0 {
		choice := data.Choices[0].Message
		msg.Content = choice.Content
		msg.ToolCalls = fromOpenAIToolCalls(choice.ToolCalls)
	}
	return &ChatResponse{Message: msg, Done: true}, nil
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *LMStudioClient) chatOpenAIStream(ctx context.Context, model string, messages []ChatMessage, tools []ToolDefinition, onChunk func(string)) (*ChatResponse, error) {
	body := openAIChatRequest{Model: model, Messages: toOpenAIMessages(messages), Stream: true, Tools: tools}
	res, err := c.postJSON(ctx, c.baseURL+"/chat/completions", body)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var content strings.Builder
	var toolCalls []openAIToolCall
	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			if payload == "[DONE]" {
				break
			}
			continue
		}
		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				if onChunk != nil {
					onChunk(choice.Delta.Content)
				}
				content.WriteString(choice.Delta.Content)
			}
			if len(choice.Delta.ToolCalls) > 0 {
				toolCalls = append(toolCalls, choice.Delta.ToolCalls...)
			}
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading chat stream: %w", err)
	}
	return &ChatResponse{
		Message: &ChatMessage{Role: "assistant", Content: content.String(), ToolCalls: fromOpenAIToolCalls(toolCalls)},
		Done:    true,
	}, nil
}

type nativeChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

type nativeChatResponse struct {
	Message *ChatMessage `json:"message"`
	Content string       `json:"content"`
}

func (c *LMStudioClient) chatNative(ctx context.Context, model string, messages []ChatMessage) (*ChatResponse, error) {
	res, err := c.postJSON(ctx, c.serverRoot()+"/api/v1/chat", nativeChatRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	var data nativeChatResponse
	if err := json.NewDecoder(res.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}
	msg := data.Message
	if msg == nil {
		msg = &ChatMessage{Role: "assistant", Content: data.Content}
	}
	return &ChatResponse{Message: msg, Done: true}, nil
}

func (c *LMStudioClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("lm studio request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return apiError("lmstudio", res)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *LMStudioClient) postJSON(ctx context.Context, url string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lm studio request failed: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		return nil, apiError("lmstudio", res)
	}
	return res, nil
}
