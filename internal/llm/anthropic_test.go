package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/HexSleeves/pollen/internal/schema"
)

// anthropicFake answers the Messages API with the given bodies in order.
// The returned func reports the raw request bodies seen so far.
func anthropicFake(t *testing.T, replies ...string) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		bodies = append(bodies, string(body))
		if len(replies) == 0 {
			http.Error(w, `{"type":"error","error":{"type":"api_error","message":"no reply"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, replies[0])
		replies = replies[1:]
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), bodies...)
	}
}

const anthropicText = `{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",` +
	`"content":[{"type":"text","text":"{\"location\":\"Lahore\",\"summary\":\"Sunny\"}"}],` +
	`"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":7}}`

func toolTurns() []Message {
	return []Message{
		SystemMessage("be brief"),
		UserMessage("weather in Lahore?"),
		ToolRequest{Calls: []ToolCall{{ID: "tu_1", Name: "get_current_weather", Arguments: `{"location":"Lahore"}`}}}.Message(),
		ToolResult{CallID: "tu_1", Name: "get_current_weather", Content: `{"temperature":"26°C"}`}.Message(),
	}
}

func TestAnthropicClient_ToolTurnsWithoutTools(t *testing.T) {
	srv, bodies := anthropicFake(t, anthropicText)
	c := NewAnthropicClient("k", "claude-test", 0, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	sch := schema.New("WeatherSummary",
		schema.Req("location", schema.String, ""),
		schema.Req("summary", schema.String, ""),
	)
	resp, err := c.Complete(context.Background(), &Request{Messages: toolTurns(), ResponseFormat: sch})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := Text(resp.Result); !strings.Contains(got, "Sunny") {
		t.Errorf("unexpected content %q", got)
	}

	seen := bodies()
	if len(seen) != 1 {
		t.Fatalf("expected 1 request, got %d", len(seen))
	}
	body := seen[0]
	if strings.Contains(body, `"tool_use"`) || strings.Contains(body, `"tool_result"`) {
		t.Errorf("tool blocks sent without declared tools: %s", body)
	}
	var req map[string]interface{}
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if _, ok := req["tools"]; ok {
		t.Error("expected no tools in request")
	}
	if !strings.Contains(body, "get_current_weather result") {
		t.Errorf("tool result should be kept as text: %s", body)
	}
}

func TestAnthropicClient_ToolTurnsWithTools(t *testing.T) {
	srv, bodies := anthropicFake(t, anthropicText)
	c := NewAnthropicClient("k", "claude-test", 0, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))

	if _, err := c.Complete(context.Background(), &Request{Messages: toolTurns(), Tools: []ToolDecl{weatherTool()}}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	body := bodies()[0]
	if !strings.Contains(body, `"tool_use"`) || !strings.Contains(body, `"tool_result"`) {
		t.Errorf("expected tool blocks when tools are declared: %s", body)
	}
}
