package llm

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/HexSleeves/pollen/internal/schema"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation. Its JSON form is the
// OpenAI chat-completions message shape, which is also what gets persisted.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage builds a user message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage builds a plain assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolCall is the model asking for a local function to run.
// Arguments is the raw JSON argument text exactly as the model sent it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

type toolCallJSON struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (tc ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(toolCallJSON{
		ID:       tc.ID,
		Type:     "function",
		Function: toolCallFunction{Name: tc.Name, Arguments: tc.Arguments},
	})
}

func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var raw toolCallJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tc.ID = raw.ID
	tc.Name = raw.Function.Name
	tc.Arguments = raw.Function.Arguments
	return nil
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	CallID  string `json:"tool_call_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message converts the result into the tool-role message sent back to the model.
func (r ToolResult) Message() Message {
	return Message{
		Role:       RoleTool,
		Content:    r.Content,
		ToolCallID: r.CallID,
		Name:       r.Name,
	}
}

// ToolDecl advertises a callable tool to the model.
type ToolDecl struct {
	Name        string
	Description string
	Parameters  *schema.Schema
}

// Request is one call to the completion endpoint.
type Request struct {
	Messages []Message
	Tools    []ToolDecl
	// ToolChoice is "auto", "none", "required" or empty to leave it to the provider.
	ToolChoice string
	// ResponseFormat asks for strict JSON matching the schema.
	ResponseFormat  *schema.Schema
	ReasoningEffort string
	MaxTokens       int
}

// Usage is token accounting reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is a decoded completion.
type Response struct {
	Result       Completion
	Model        string
	FinishReason string
	Usage        Usage
}

// Completion is either a FinalAnswer or a ToolRequest. It is decided once
// when the response is decoded; callers switch on the concrete type.
type Completion interface {
	// Message returns the assistant message to append to the conversation.
	Message() Message
}

// FinalAnswer is a reply with no tool calls.
type FinalAnswer struct {
	Content string
}

func (a FinalAnswer) Message() Message { return AssistantMessage(a.Content) }

// ToolRequest is a reply asking for one or more tool calls.
type ToolRequest struct {
	Content string
	Calls   []ToolCall
}

func (r ToolRequest) Message() Message {
	return Message{Role: RoleAssistant, Content: r.Content, ToolCalls: r.Calls}
}

// WithIDs returns a copy where every call has an identifier unique within
// the request. Missing ids and repeats of an earlier id are replaced with
// generated ones so tool results can always be matched.
func (r ToolRequest) WithIDs() ToolRequest {
	out := make([]ToolCall, len(r.Calls))
	seen := make(map[string]bool, len(r.Calls))
	for i, c := range r.Calls {
		if c.ID == "" || seen[c.ID] {
			c.ID = "call_" + uuid.NewString()
		}
		seen[c.ID] = true
		out[i] = c
	}
	return ToolRequest{Content: r.Content, Calls: out}
}

// NewCompletion picks the variant. Call ids are made unique (see WithIDs).
func NewCompletion(content string, calls []ToolCall) Completion {
	if len(calls) == 0 {
		return FinalAnswer{Content: content}
	}
	return ToolRequest{Content: content, Calls: calls}.WithIDs()
}

// Text returns the textual content of either variant.
func Text(c Completion) string {
	switch v := c.(type) {
	case FinalAnswer:
		return v.Content
	case ToolRequest:
		return v.Content
	}
	return ""
}
