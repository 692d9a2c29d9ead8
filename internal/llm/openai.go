package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/HexSleeves/pollen/internal/errors"
)

// GeminiBaseURL is Google's OpenAI-compatible endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// OpenAIClient implements Streamer for OpenAI-compatible chat/completions APIs.
// Works with Gemini's compatibility layer, OpenAI, and any compatible endpoint.
type OpenAIClient struct {
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	timeout   time.Duration
	client    *http.Client
}

// Option configures an OpenAIClient.
type Option func(*OpenAIClient)

// WithTimeout bounds a whole Complete call, and a Stream call until the
// response headers arrive; reading the event stream is bounded only by
// ctx. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *OpenAIClient) { c.timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *OpenAIClient) { c.client = hc }
}

// WithMaxTokens caps completion length. Zero leaves it to the provider.
func WithMaxTokens(n int) Option {
	return func(c *OpenAIClient) { c.maxTokens = n }
}

// OpenAI API request/response types

type openaiRequest struct {
	Model               string                `json:"model"`
	Messages            []openaiMessage       `json:"messages"`
	Tools               []openaiTool          `json:"tools,omitempty"`
	ToolChoice          string                `json:"tool_choice,omitempty"`
	ResponseFormat      *openaiResponseFormat `json:"response_format,omitempty"`
	ReasoningEffort     string                `json:"reasoning_effort,omitempty"`
	MaxCompletionTokens int                   `json:"max_completion_tokens,omitempty"`
	Stream              bool                  `json:"stream,omitempty"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    any              `json:"content,omitempty"` // string or []openaiContentPart
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

type openaiTool struct {
	Type     string         `json:"type"` // "function"
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type openaiToolCall struct {
	Index    *int               `json:"index,omitempty"` // stream deltas only
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"` // "function"
	Function openaiCallFunction `json:"function"`
}

type openaiCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"` // JSON string
}

type openaiResponseFormat struct {
	Type       string            `json:"type"` // "json_schema"
	JSONSchema *openaiJSONSchema `json:"json_schema,omitempty"`
}

type openaiJSONSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Schema      map[string]interface{} `json:"schema"`
	Strict      bool                   `json:"strict"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
	Error   *openaiError   `json:"error,omitempty"`
	Usage   *openaiUsage   `json:"usage,omitempty"`
	Model   string         `json:"model,omitempty"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiChoice struct {
	Message      openaiMessage `json:"message"`
	Delta        openaiMessage `json:"delta"`
	FinishReason string        `json:"finish_reason"` // "stop", "tool_calls", "length"
}

type openaiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"`
}

// NewOpenAIClient creates a client for OpenAI-compatible APIs.
// If baseURL is empty, it defaults to the Gemini compatibility endpoint.
func NewOpenAIClient(apiKey, model, baseURL string, opts ...Option) *OpenAIClient {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if baseURL == "" {
		baseURL = GeminiBaseURL
	}
	// Trim trailing slash
	baseURL = strings.TrimRight(baseURL, "/")

	c := &OpenAIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		timeout: 120 * time.Second,
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.model }

// Complete sends one non-streaming request.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	httpResp, err := c.post(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.New(errors.KindTransport, "openai: read response", err)
	}

	var resp openaiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, errors.New(errors.KindTransport, "openai: unmarshal response", err)
	}
	if resp.Error != nil {
		return nil, errors.Newf(errors.KindTransport, "openai", "%s: %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.Newf(errors.KindTransport, "openai", "no choices in response")
	}

	choice := resp.Choices[0]
	calls := make([]ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	result := &Response{
		Result:       NewCompletion(contentText(choice.Message.Content), calls),
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
	}
	if resp.Usage != nil {
		result.Usage = Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return result, nil
}

// Stream sends the request with stream=true and returns the open event stream.
// The caller must drain or Close it.
func (c *OpenAIClient) Stream(ctx context.Context, req *Request) (*Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	var timer *time.Timer
	if c.timeout > 0 {
		timer = time.AfterFunc(c.timeout, cancel)
	}
	httpResp, err := c.post(ctx, c.buildRequest(req, true))
	if err != nil {
		cancel()
		return nil, err
	}
	if timer != nil && !timer.Stop() {
		httpResp.Body.Close()
		cancel()
		return nil, errors.Newf(errors.KindTransport, "openai", "no response within %s", c.timeout)
	}
	return NewStream(&cancelBody{ReadCloser: httpResp.Body, cancel: cancel}), nil
}

// cancelBody releases the request context once the stream is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func (c *OpenAIClient) buildRequest(req *Request, stream bool) openaiRequest {
	body := openaiRequest{
		Model:               c.model,
		Messages:            toOpenAIMessages(req.Messages),
		ToolChoice:          req.ToolChoice,
		ReasoningEffort:     req.ReasoningEffort,
		MaxCompletionTokens: c.maxTokens,
		Stream:              stream,
	}
	if req.MaxTokens > 0 {
		body.MaxCompletionTokens = req.MaxTokens
	}
	for _, td := range req.Tools {
		body.Tools = append(body.Tools, openaiTool{
			Type: "function",
			Function: openaiFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters.JSONSchema(),
			},
		})
	}
	if len(body.Tools) == 0 {
		// tool_choice without tools is rejected by most endpoints.
		body.ToolChoice = ""
	}
	if s := req.ResponseFormat; s != nil {
		js := s.JSONSchema()
		// strict mode requires a closed object
		if _, ok := js["additionalProperties"]; !ok {
			js["additionalProperties"] = false
		}
		body.ResponseFormat = &openaiResponseFormat{
			Type: "json_schema",
			JSONSchema: &openaiJSONSchema{
				Name:        s.Name,
				Description: s.Description,
				Schema:      js,
				Strict:      true,
			},
		}
	}
	return body
}

func toOpenAIMessages(msgs []Message) []openaiMessage {
	out := make([]openaiMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openaiMessage{
			Role:       string(m.Role),
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		if m.Content != "" {
			om.Content = m.Content
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openaiToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openaiCallFunction{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		if om.Role == string(RoleTool) && om.Content == nil {
			om.Content = ""
		}
		out = append(out, om)
	}
	return out
}

// contentText flattens the content field, which is a string, null, or a list of parts.
func contentText(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		var sb strings.Builder
		for _, part := range v {
			if m, ok := part.(map[string]interface{}); ok {
				if text, ok := m["text"].(string); ok {
					sb.WriteString(text)
				}
			}
		}
		return sb.String()
	default:
		raw, _ := json.Marshal(v)
		return string(raw)
	}
}

func (c *OpenAIClient) post(ctx context.Context, body openaiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, errors.New(errors.KindTransport, "openai: create request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.New(errors.KindTransport, "openai: request failed", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 64<<10))
		return nil, errors.Newf(errors.KindTransport, "openai", "API error %d: %s",
			httpResp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return httpResp, nil
}
