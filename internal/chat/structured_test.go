package chat

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HexSleeves/pollen/internal/errors"
	"github.com/HexSleeves/pollen/internal/llm"
	"github.com/HexSleeves/pollen/internal/schema"
	"github.com/HexSleeves/pollen/internal/tools"
)

func weatherInfo() *schema.Schema {
	s := schema.New("WeatherInfo",
		schema.Req("location", schema.String, "City name"),
		schema.Req("temp_c", schema.Number, "Temperature in Celsius"),
		schema.Req("condition", schema.String, "Short condition"),
	)
	s.Strict = true
	return s
}

func TestResolveStructured_Valid(t *testing.T) {
	client := &scripted{replies: []llm.Completion{
		llm.FinalAnswer{Content: `{"location":"Tokyo","temp_c":18.5,"condition":"Cloudy"}`},
	}}
	s := NewSession(client, nil)
	conv := userConv("Weather in Tokyo as JSON")

	out, err := s.ResolveStructured(context.Background(), conv, weatherInfo())
	require.NoError(t, err)
	assert.Equal(t, "Tokyo", out.Data["location"])

	var w struct {
		Location  string  `json:"location"`
		TempC     float64 `json:"temp_c"`
		Condition string  `json:"condition"`
	}
	require.NoError(t, out.Decode(weatherInfo(), &w))
	assert.Equal(t, 18.5, w.TempC)

	require.Len(t, client.requests, 1)
	assert.Equal(t, "WeatherInfo", client.requests[0].ResponseFormat.Name)
	assert.Empty(t, client.requests[0].Tools)
	assert.Equal(t, 3, conv.Len())
}

func TestResolveStructured_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "It is sunny in Tokyo."},
		{"missing temp_c", `{"location":"Tokyo","condition":"Sunny"}`},
		{"mistyped temp_c", `{"location":"Tokyo","temp_c":"warm","condition":"Sunny"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scripted{replies: []llm.Completion{llm.FinalAnswer{Content: tt.reply}}}
			conv := userConv("Weather in Tokyo as JSON")

			_, err := NewSession(client, nil).ResolveStructured(context.Background(), conv, weatherInfo())
			require.Error(t, err)

			var verr *schema.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.reply, verr.Raw)
			assert.True(t, errors.IsValidation(err))
			assert.False(t, errors.IsTransport(err))
			assert.NoError(t, conv.ReadyForCompletion(), "failed reply is not appended")
		})
	}
}

func TestResolveStructured_TransportIsDistinct(t *testing.T) {
	client := &scripted{err: errors.Newf(errors.KindTransport, "openai", "request failed")}
	_, err := NewSession(client, nil).ResolveStructured(context.Background(), userConv("x"), weatherInfo())
	require.Error(t, err)
	var verr *schema.ValidationError
	assert.False(t, errors.As(err, &verr))
	assert.True(t, errors.IsTransport(err))
}

func TestResolveStructured_AfterTools(t *testing.T) {
	summary := schema.New("WeatherSummary",
		schema.Req("location", schema.String, ""),
		schema.Req("summary", schema.String, ""),
	)
	client := &scripted{replies: []llm.Completion{
		llm.ToolRequest{Calls: []llm.ToolCall{{ID: "w", Name: tools.WeatherTool, Arguments: `{"location":"Lahore"}`}}},
		llm.FinalAnswer{Content: `{"location":"Lahore","summary":"Sunny and 26°C"}`},
	}}
	s := newTestSession(client)
	conv := userConv("Summarize the weather in Lahore")

	out, err := s.ResolveStructured(context.Background(), conv, summary)
	require.NoError(t, err)
	assert.Equal(t, "Sunny and 26°C", out.Data["summary"])

	require.Len(t, client.requests, 2)
	assert.Len(t, client.requests[0].Tools, 2)
	assert.Nil(t, client.requests[0].ResponseFormat)
	assert.Empty(t, client.requests[1].Tools, "structured call is sent without tools")
	assert.Equal(t, summary, client.requests[1].ResponseFormat)
	// system, user, assistant(call), tool, assistant(json)
	assert.Equal(t, 5, conv.Len())
}

func TestResolveStructured_NoToolCalled(t *testing.T) {
	summary := schema.New("WeatherSummary", schema.Req("location", schema.String, ""), schema.Req("summary", schema.String, ""))
	client := &scripted{replies: []llm.Completion{
		llm.FinalAnswer{Content: "I know it already."},
		llm.FinalAnswer{Content: `{"location":"Lahore","summary":"hot"}`},
	}}
	conv := userConv("Summarize Lahore")

	_, err := newTestSession(client).ResolveStructured(context.Background(), conv, summary)
	require.NoError(t, err)
	assert.Len(t, client.requests, 2)
	// the unstructured first reply was discarded
	assert.Equal(t, 3, conv.Len())
}

func TestResolveStructured_AnthropicAfterTools(t *testing.T) {
	replies := []string{
		`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[` +
			`{"type":"tool_use","id":"tu_1","name":"get_current_weather","input":{"location":"Lahore"}}],` +
			`"stop_reason":"tool_use","usage":{"input_tokens":10,"output_tokens":5}}`,
		`{"id":"msg_2","type":"message","role":"assistant","model":"claude-test","content":[` +
			`{"type":"text","text":"{\"location\":\"Lahore\",\"summary\":\"Sunny\"}"}],` +
			`"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":8}}`,
	}
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
			http.Error(w, "no reply", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, replies[0]) //nolint:errcheck
		replies = replies[1:]
	}))
	defer srv.Close()

	client := llm.NewAnthropicClient("k", "claude-test", 0, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	s := NewSession(client, tools.NewRegistry(tools.NewWeatherTool(nil)))
	summary := schema.New("WeatherSummary",
		schema.Req("location", schema.String, ""),
		schema.Req("summary", schema.String, ""),
	)

	out, err := s.ResolveStructured(context.Background(), userConv("Summarize the weather in Lahore"), summary)
	require.NoError(t, err)
	assert.Equal(t, "Sunny", out.Data["summary"])

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[0], `"tools"`)
	assert.NotContains(t, bodies[1], `"tool_use"`)
	assert.NotContains(t, bodies[1], `"tool_result"`)
	assert.True(t, strings.Contains(bodies[1], "get_current_weather"), "tool turn kept as text")
}
