package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"

	"github.com/HexSleeves/pollen/internal/errors"
)

// AnthropicClient wraps the Anthropic SDK. It implements Completer only;
// streaming commands require an OpenAI-compatible provider.
type AnthropicClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropicClient(apiKey, model string, maxTokens int, opts ...option.RequestOption) *AnthropicClient {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	c := anthropic.NewClient(opts...)
	return &AnthropicClient{
		client:    &c,
		model:     model,
		maxTokens: maxTokens,
	}
}

// Complete sends the conversation through the Messages API.
// System messages are lifted into the system prompt, consecutive tool
// results are merged into one user turn, and a response format becomes
// an instruction appended to the system prompt. Without declared tools,
// earlier tool turns are sent as plain text since the API refuses tool
// blocks in a request that declares none.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	system, msgs := toAnthropicMessages(req.Messages, len(req.Tools) > 0)
	if s := req.ResponseFormat; s != nil {
		raw, _ := json.Marshal(s.JSONSchema())
		system = strings.TrimSpace(system + "\n\nRespond with only a JSON object matching this schema, no prose:\n" + string(raw))
	}

	maxTokens := c.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.New(errors.KindTransport, "anthropic", err)
	}

	var text strings.Builder
	var calls []ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			toolUse := block.AsToolUse()
			calls = append(calls, ToolCall{
				ID:        toolUse.ID,
				Name:      toolUse.Name,
				Arguments: string(toolUse.Input),
			})
		}
	}

	return &Response{
		Result:       NewCompletion(text.String(), calls),
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

func toAnthropicTools(tools []ToolDecl) []anthropic.ToolUnionParam {
	apiTools := make([]anthropic.ToolUnionParam, len(tools))
	for i, td := range tools {
		js := td.Parameters.JSONSchema()
		schema := anthropic.ToolInputSchemaParam{
			Properties: js["properties"],
		}
		schema.Required = td.Parameters.Required()
		t := anthropic.ToolUnionParamOfTool(schema, td.Name)
		if td.Description != "" {
			t.OfTool.Description = param.NewOpt(td.Description)
		}
		apiTools[i] = t
	}
	return apiTools
}

func toAnthropicMessages(msgs []Message, withTools bool) (string, []anthropic.MessageParam) {
	var system []string
	out := make([]anthropic.MessageParam, 0, len(msgs))
	var pending []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pending) > 0 {
			out = append(out, anthropic.NewUserMessage(pending...))
			pending = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)

		case RoleTool:
			if !withTools {
				name := m.Name
				if name == "" {
					name = m.ToolCallID
				}
				pending = append(pending, anthropic.NewTextBlock("["+name+" result] "+m.Content))
				continue
			}
			pending = append(pending, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, isErrorPayload(m.Content)))

		case RoleAssistant:
			flush()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			if !withTools {
				for _, tc := range m.ToolCalls {
					blocks = append(blocks, anthropic.NewTextBlock("[called "+tc.Name+"("+tc.Arguments+")]"))
				}
				out = append(out, anthropic.NewAssistantMessage(blocks...))
				continue
			}
			for _, tc := range m.ToolCalls {
				var input map[string]interface{}
				_ = json.Unmarshal([]byte(tc.Arguments), &input)
				if input == nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))

		default:
			flush()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	flush()
	return strings.Join(system, "\n\n"), out
}

// isErrorPayload recognizes the {"error": "..."} shape tool failures are reported in.
func isErrorPayload(content string) bool {
	var probe map[string]interface{}
	if json.Unmarshal([]byte(content), &probe) != nil || len(probe) != 1 {
		return false
	}
	_, ok := probe["error"]
	return ok
}
