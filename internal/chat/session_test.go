package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HexSleeves/pollen/internal/bus"
	"github.com/HexSleeves/pollen/internal/errors"
	"github.com/HexSleeves/pollen/internal/llm"
	"github.com/HexSleeves/pollen/internal/tools"
)

// scripted replies with one canned completion per call and records requests.
type scripted struct {
	mu       sync.Mutex
	replies  []llm.Completion
	err      error
	requests []*llm.Request
}

func (s *scripted) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return nil, fmt.Errorf("scripted: no reply left for call %d", len(s.requests))
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return &llm.Response{Result: r, Model: "fake", FinishReason: "stop"}, nil
}

func fixedClock() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

func testRegistry() *tools.Registry {
	return tools.NewRegistry(tools.NewWeatherTool(nil), tools.NewTimeTool(nil, fixedClock))
}

func newTestSession(client llm.Completer) *Session {
	s := NewSession(client, testRegistry())
	s.Bus = bus.New(0)
	return s
}

func userConv(text string) *Conversation {
	c := NewConversation(DefaultSystemPrompt)
	if err := c.AddUser(text); err != nil {
		panic(err)
	}
	return c
}

func TestResolve_FinalAnswerOneCall(t *testing.T) {
	client := &scripted{replies: []llm.Completion{llm.FinalAnswer{Content: "Hello!"}}}
	s := newTestSession(client)
	conv := userConv("Hi")

	msg, err := s.Resolve(context.Background(), conv)
	require.NoError(t, err)

	assert.Equal(t, "Hello!", msg.Content)
	assert.Len(t, client.requests, 1)
	assert.Equal(t, 3, conv.Len())
	last, _ := conv.Last()
	assert.Equal(t, msg, last)
	assert.Equal(t, "auto", client.requests[0].ToolChoice)
	assert.Len(t, client.requests[0].Tools, 2)
}

func TestResolve_WeatherAndTime(t *testing.T) {
	client := &scripted{replies: []llm.Completion{
		llm.ToolRequest{Calls: []llm.ToolCall{
			{ID: "call_w", Name: tools.WeatherTool, Arguments: `{"location":"Lahore"}`},
			{ID: "call_t", Name: tools.TimeTool, Arguments: `{"city":"Tokyo"}`},
		}},
		llm.FinalAnswer{Content: "Lahore is sunny at 26°C and it is 09:00 PM in Tokyo."},
	}}
	s := newTestSession(client)
	conv := userConv("What's the weather in Lahore and what time is it in Tokyo?")

	msg, err := s.Resolve(context.Background(), conv)
	require.NoError(t, err)
	assert.Contains(t, msg.Content, "Lahore")
	assert.Contains(t, msg.Content, "Tokyo")

	require.Len(t, client.requests, 2, "one tool round plus one finalization")

	msgs := conv.Messages()
	// system, user, assistant(calls), tool, tool, assistant
	require.Len(t, msgs, 6)
	assert.Len(t, msgs[2].ToolCalls, 2)

	toolMsgs := msgs[3:5]
	assert.Equal(t, "call_w", toolMsgs[0].ToolCallID)
	assert.Equal(t, tools.WeatherTool, toolMsgs[0].Name)
	assert.JSONEq(t, `{"location":"Lahore","temperature":"26°C","condition":"Sunny"}`, toolMsgs[0].Content)
	assert.Equal(t, "call_t", toolMsgs[1].ToolCallID)
	assert.JSONEq(t, `{"city":"Tokyo","current_time":"09:00 PM"}`, toolMsgs[1].Content)

	second := client.requests[1]
	assert.Empty(t, second.ToolChoice, "follow-up must not force tool use")
	assert.Len(t, second.Tools, 2, "declarations re-attached by default")
	assert.Len(t, second.Messages, 5)
}

func TestResolve_UnknownToolInBand(t *testing.T) {
	client := &scripted{replies: []llm.Completion{
		llm.ToolRequest{Calls: []llm.ToolCall{{ID: "x", Name: "get_stock_price", Arguments: `{"ticker":"GOOG"}`}}},
		llm.FinalAnswer{Content: "I cannot look that up."},
	}}
	s := newTestSession(client)
	conv := userConv("Price of GOOG?")

	_, err := s.Resolve(context.Background(), conv)
	require.NoError(t, err)

	toolMsg := conv.Messages()[3]
	assert.Equal(t, llm.RoleTool, toolMsg.Role)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(toolMsg.Content), &payload))
	assert.Contains(t, payload["error"], "unknown tool")
}

func TestResolve_DuplicateCallIDs(t *testing.T) {
	client := &scripted{replies: []llm.Completion{
		llm.ToolRequest{Calls: []llm.ToolCall{
			{ID: "c", Name: tools.WeatherTool, Arguments: `{"location":"Lahore"}`},
			{ID: "c", Name: tools.TimeTool, Arguments: `{"city":"Tokyo"}`},
		}},
		llm.FinalAnswer{Content: "Sunny in Lahore, noon in Tokyo."},
	}}
	s := newTestSession(client)
	conv := userConv("Weather in Lahore and time in Tokyo?")

	msg, err := s.Resolve(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, "Sunny in Lahore, noon in Tokyo.", msg.Content)
	require.Len(t, client.requests, 2)

	msgs := conv.Messages()
	// system, user, assistant(calls), tool, tool, assistant
	require.Len(t, msgs, 6)
	calls := msgs[2].ToolCalls
	require.Len(t, calls, 2)
	assert.Equal(t, "c", calls[0].ID)
	assert.NotEqual(t, calls[0].ID, calls[1].ID)
	assert.Equal(t, calls[0].ID, msgs[3].ToolCallID)
	assert.Equal(t, calls[1].ID, msgs[4].ToolCallID)
	assert.Equal(t, tools.TimeTool, msgs[4].Name)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "26°", truncate("26°", 3))
	assert.Equal(t, "26°...", truncate("26°C sunny", 3))
	assert.True(t, utf8.ValidString(truncate(strings.Repeat("°", 300), 200)))
}

func TestResolve_BudgetSpentDropsRequests(t *testing.T) {
	client := &scripted{replies: []llm.Completion{
		llm.ToolRequest{Calls: []llm.ToolCall{{ID: "1", Name: tools.WeatherTool, Arguments: `{"location":"Paris"}`}}},
		llm.ToolRequest{Content: "Paris is sunny.", Calls: []llm.ToolCall{{ID: "2", Name: tools.WeatherTool, Arguments: `{"location":"Rome"}`}}},
	}}
	s := newTestSession(client)
	var dropped []string
	s.Bus.Subscribe(bus.MsgToolsDropped, func(m bus.Message) { dropped = append(dropped, m.Tool) })
	conv := userConv("Paris?")

	msg, err := s.Resolve(context.Background(), conv)
	require.NoError(t, err)

	assert.Len(t, client.requests, 2)
	assert.Equal(t, "Paris is sunny.", msg.Content)
	assert.Empty(t, msg.ToolCalls)
	assert.Equal(t, []string{tools.WeatherTool}, dropped)
	assert.Equal(t, 5, conv.Len())
}

func TestResolve_MultipleRounds(t *testing.T) {
	client := &scripted{replies: []llm.Completion{
		llm.ToolRequest{Calls: []llm.ToolCall{{ID: "1", Name: tools.WeatherTool, Arguments: `{"location":"Paris"}`}}},
		llm.ToolRequest{Calls: []llm.ToolCall{{ID: "2", Name: tools.TimeTool, Arguments: `{"city":"London"}`}}},
		llm.FinalAnswer{Content: "done"},
	}}
	s := newTestSession(client)
	s.Options.MaxRounds = 3
	conv := userConv("Paris then London")

	_, err := s.Resolve(context.Background(), conv)
	require.NoError(t, err)
	assert.Len(t, client.requests, 3)
	assert.Equal(t, 7, conv.Len())
}

func TestResolve_NoReattach(t *testing.T) {
	client := &scripted{replies: []llm.Completion{
		llm.ToolRequest{Calls: []llm.ToolCall{{ID: "1", Name: tools.WeatherTool, Arguments: `{"location":"Paris"}`}}},
		llm.FinalAnswer{Content: "ok"},
	}}
	s := newTestSession(client)
	s.Options.ReattachTools = false

	_, err := s.Resolve(context.Background(), userConv("Paris?"))
	require.NoError(t, err)
	assert.Empty(t, client.requests[1].Tools)
}

func TestResolve_NoTools(t *testing.T) {
	client := &scripted{replies: []llm.Completion{llm.FinalAnswer{Content: "plain"}}}
	s := NewSession(client, nil)
	_, err := s.Resolve(context.Background(), userConv("hi"))
	require.NoError(t, err)
	assert.Empty(t, client.requests[0].Tools)
	assert.Empty(t, client.requests[0].ToolChoice)
}

func TestResolve_TransportError(t *testing.T) {
	client := &scripted{err: errors.Newf(errors.KindTransport, "openai", "API error 503: unavailable")}
	s := newTestSession(client)
	var failures int
	s.Bus.Subscribe(bus.MsgCompletionFailed, func(bus.Message) { failures++ })
	conv := userConv("hi")

	_, err := s.Resolve(context.Background(), conv)
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
	assert.Equal(t, 1, failures)
	assert.Equal(t, 2, conv.Len(), "nothing appended on failure")
}

func TestResolve_RefusesUnreadyConversation(t *testing.T) {
	client := &scripted{}
	s := newTestSession(client)
	_, err := s.Resolve(context.Background(), NewConversation("sys"))
	require.Error(t, err)
	assert.Empty(t, client.requests)
}

func TestResolve_PublishesEvents(t *testing.T) {
	client := &scripted{replies: []llm.Completion{
		llm.ToolRequest{Calls: []llm.ToolCall{{ID: "1", Name: tools.WeatherTool, Arguments: `{"location":"Paris"}`}}},
		llm.FinalAnswer{Content: "ok"},
	}}
	s := newTestSession(client)
	s.Options.SessionID = "sess-1"
	var types []bus.MsgType
	s.Bus.SubscribeAll(func(m bus.Message) {
		assert.Equal(t, "sess-1", m.Session)
		types = append(types, m.Type)
	})

	_, err := s.Resolve(context.Background(), userConv("Paris?"))
	require.NoError(t, err)
	assert.Equal(t, []bus.MsgType{
		bus.MsgCompletionStarted, bus.MsgCompletionDone,
		bus.MsgToolCalled, bus.MsgToolResult,
		bus.MsgCompletionStarted, bus.MsgCompletionDone,
		bus.MsgAnswer,
	}, types)
}

// fakeStreamer serves each scripted SSE body in turn.
type fakeStreamer struct {
	scripted
	bodies []string
}

func (f *fakeStreamer) Stream(_ context.Context, req *llm.Request) (*llm.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.bodies) == 0 {
		return nil, fmt.Errorf("fakeStreamer: no body left")
	}
	b := f.bodies[0]
	f.bodies = f.bodies[1:]
	return llm.NewStream(io.NopCloser(strings.NewReader(b))), nil
}

func sse(events ...string) string {
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString("data: " + e + "\n\n")
	}
	sb.WriteString("data: [DONE]\n\n")
	return sb.String()
}

func textEvent(s string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []interface{}{map[string]interface{}{"delta": map[string]interface{}{"content": s}}},
	})
	return string(b)
}

func TestResolveStream_MatchesNonStreamed(t *testing.T) {
	parts := []string{"Black holes ", "are regions ", "where gravity wins."}
	events := make([]string, len(parts))
	for i, p := range parts {
		events[i] = textEvent(p)
	}
	client := &fakeStreamer{bodies: []string{sse(events...)}}
	s := newTestSession(client)
	conv := userConv("Explain black holes")

	turn, err := s.ResolveStream(context.Background(), conv)
	require.NoError(t, err)

	var got []string
	for chunk := range turn.Chunks() {
		got = append(got, chunk)
	}
	msg, err := turn.Answer()
	require.NoError(t, err)

	assert.Equal(t, parts, got)
	assert.Equal(t, strings.Join(parts, ""), msg.Content)
	last, _ := conv.Last()
	assert.Equal(t, msg.Content, last.Content)

	// ranging again yields nothing
	for range turn.Chunks() {
		t.Fatal("second range yielded a chunk")
	}
}

func TestResolveStream_ToolRound(t *testing.T) {
	client := &fakeStreamer{bodies: []string{
		sse(
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"c1","type":"function","function":{"name":"get_current_weather","arguments":"{\"loca"}}]}}]}`,
			`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"tion\":\"Lahore\"}"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		),
		sse(textEvent("It is sunny "), textEvent("in Lahore.")),
	}}
	s := newTestSession(client)
	conv := userConv("What's the weather in Lahore?")

	turn, err := s.ResolveStream(context.Background(), conv)
	require.NoError(t, err)

	var sb strings.Builder
	for chunk := range turn.Chunks() {
		sb.WriteString(chunk)
	}
	require.NoError(t, turn.Err())
	assert.Equal(t, "It is sunny in Lahore.", sb.String())

	msgs := conv.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, `{"location":"Lahore"}`, msgs[2].ToolCalls[0].Arguments)
	assert.Equal(t, "c1", msgs[3].ToolCallID)
	assert.Contains(t, msgs[3].Content, "26°C")

	require.Len(t, client.requests, 2)
	assert.Equal(t, "auto", client.requests[0].ToolChoice)
	assert.Empty(t, client.requests[1].ToolChoice)
}

func TestResolveStream_Abandoned(t *testing.T) {
	client := &fakeStreamer{bodies: []string{sse(textEvent("a"), textEvent("b"))}}
	s := newTestSession(client)
	conv := userConv("hi")

	turn, err := s.ResolveStream(context.Background(), conv)
	require.NoError(t, err)
	for range turn.Chunks() {
		break
	}
	_, err = turn.Answer()
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.Equal(t, 2, conv.Len())
	assert.NoError(t, conv.ReadyForCompletion())
}

func TestResolveStream_AnswerWithoutRanging(t *testing.T) {
	client := &fakeStreamer{bodies: []string{sse(textEvent("x"), textEvent("y"))}}
	turn, err := newTestSession(client).ResolveStream(context.Background(), userConv("hi"))
	require.NoError(t, err)
	msg, err := turn.Answer()
	require.NoError(t, err)
	assert.Equal(t, "xy", msg.Content)
}

func TestResolveStream_RequiresStreamer(t *testing.T) {
	_, err := newTestSession(&scripted{}).ResolveStream(context.Background(), userConv("hi"))
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
}

func TestResolveStream_ReasoningEffort(t *testing.T) {
	client := &fakeStreamer{bodies: []string{sse(textEvent("ok"))}}
	s := NewSession(client, nil)
	s.Options.ReasoningEffort = "low"
	turn, err := s.ResolveStream(context.Background(), userConv("hi"))
	require.NoError(t, err)
	_, err = turn.Answer()
	require.NoError(t, err)
	assert.Equal(t, "low", client.requests[0].ReasoningEffort)
}
