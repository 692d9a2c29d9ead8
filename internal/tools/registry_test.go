package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HexSleeves/pollen/internal/llm"
	"github.com/HexSleeves/pollen/internal/schema"
)

func call(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: args}
}

func errorOf(t *testing.T, res llm.ToolResult) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(res.Content), &payload), "content %q", res.Content)
	return payload["error"]
}

func TestRegistry_Declarations(t *testing.T) {
	r := Builtins(nil)
	decls := r.Declarations()
	require.Len(t, decls, 2)
	assert.Equal(t, WeatherTool, decls[0].Name)
	assert.Equal(t, TimeTool, decls[1].Name)
	assert.Equal(t, []string{"location"}, decls[0].Parameters.Required())
	assert.Equal(t, []string{TimeTool, WeatherTool}, r.Names())
}

func TestRegistry_RegisterRejects(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "a", Handler: func(context.Context, map[string]interface{}) (interface{}, error) { return nil, nil }}))
	assert.Error(t, r.Register(Tool{Name: "a", Handler: func(context.Context, map[string]interface{}) (interface{}, error) { return nil, nil }}))
	assert.Error(t, r.Register(Tool{Name: "b"}))
	assert.Equal(t, 1, r.Len())
}

func TestExecute_Weather(t *testing.T) {
	res := Builtins(nil).Execute(context.Background(), call("c1", WeatherTool, `{"location":"Lahore"}`))
	assert.False(t, res.IsError)
	assert.Equal(t, "c1", res.CallID)
	assert.Equal(t, WeatherTool, res.Name)
	assert.JSONEq(t, `{"location":"Lahore","temperature":"26°C","condition":"Sunny"}`, res.Content)
}

func TestExecute_Time(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(NewTimeTool(nil, func() time.Time { return fixed }))

	tests := []struct {
		city string
		want string
	}{
		{"Tokyo", "09:00 PM"},
		{"lahore", "05:00 PM"},
		{"New York", "07:00 AM"},
		{"London", "12:00 PM"},
		{"Atlantis", "12:00 PM"},
	}
	for _, tt := range tests {
		t.Run(tt.city, func(t *testing.T) {
			res := r.Execute(context.Background(), call("c", TimeTool, `{"city":"`+tt.city+`"}`))
			require.False(t, res.IsError, res.Content)
			var ct CityTime
			require.NoError(t, json.Unmarshal([]byte(res.Content), &ct))
			assert.Equal(t, tt.city, ct.City)
			assert.Equal(t, tt.want, ct.CurrentTime)
		})
	}
}

func TestExecute_Failures(t *testing.T) {
	r := Builtins(nil)
	require.NoError(t, r.Register(Tool{
		Name: "explode",
		Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
			panic("kaboom")
		},
	}))
	require.NoError(t, r.Register(Tool{
		Name: "fail",
		Handler: func(context.Context, map[string]interface{}) (interface{}, error) {
			return nil, errors.New("backend down")
		},
	}))

	tests := []struct {
		name    string
		call    llm.ToolCall
		contain string
	}{
		{"unknown tool", call("u", "get_stock_price", `{}`), "unknown tool: get_stock_price"},
		{"malformed json", call("m", WeatherTool, `{"location":`), "invalid arguments"},
		{"missing required", call("r", WeatherTool, `{}`), "location"},
		{"wrong type", call("w", WeatherTool, `{"location":42}`), "location"},
		{"executor error", call("e", "fail", ``), "backend down"},
		{"panic", call("p", "explode", `{}`), "kaboom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Execute(context.Background(), tt.call)
			assert.True(t, res.IsError)
			assert.Equal(t, tt.call.ID, res.CallID)
			assert.Contains(t, errorOf(t, res), tt.contain)
		})
	}
}

func TestTyped(t *testing.T) {
	type args struct {
		City  string  `json:"city"`
		Count int     `json:"count"`
		Ratio float64 `json:"ratio"`
	}
	var got args
	h := Typed(func(_ context.Context, a args) (interface{}, error) {
		got = a
		return "ok", nil
	})
	r := NewRegistry(Tool{
		Name: "typed",
		Parameters: schema.New("typed",
			schema.Req("city", schema.String, ""),
			schema.Opt("count", schema.Integer, ""),
			schema.Opt("ratio", schema.Number, ""),
		),
		Handler: h,
	})
	res := r.Execute(context.Background(), call("t", "typed", `{"city":"Tokyo","count":3,"ratio":0.5}`))
	require.False(t, res.IsError, res.Content)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, args{City: "Tokyo", Count: 3, Ratio: 0.5}, got)
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Declarations())
	res := r.Execute(context.Background(), call("x", "any", "{}"))
	assert.True(t, res.IsError)
}
