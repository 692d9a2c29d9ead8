// Package tools holds the local functions the model may call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/HexSleeves/pollen/internal/errors"
	"github.com/HexSleeves/pollen/internal/llm"
	"github.com/HexSleeves/pollen/internal/schema"
)

// Handler runs a tool with validated arguments. The returned value is
// serialized to JSON; a string is sent as-is.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Tool is a declaration bound to its executor.
type Tool struct {
	Name        string
	Description string
	Parameters  *schema.Schema
	Handler     Handler
}

// Registry maps tool names to executors. Declarations keep registration order.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("tools: register: name and handler are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.tools[t.Name]; dup {
		return fmt.Errorf("tools: register: duplicate tool %q", t.Name)
	}
	if t.Parameters == nil {
		t.Parameters = schema.New(t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Len returns the number of registered tools. A nil registry is empty.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Names returns the registered names sorted alphabetically.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Declarations returns what gets advertised to the model.
func (r *Registry) Declarations() []llm.ToolDecl {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]llm.ToolDecl, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		decls = append(decls, llm.ToolDecl{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return decls
}

// Execute runs one call. It never returns an error: every failure becomes
// an {"error": "..."} payload with IsError set so the model can see it.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (result llm.ToolResult) {
	result = llm.ToolResult{CallID: call.ID, Name: call.Name}

	var t Tool
	var ok bool
	if r != nil {
		r.mu.RLock()
		t, ok = r.tools[call.Name]
		r.mu.RUnlock()
	}
	if !ok {
		return failed(result, fmt.Errorf("unknown tool: %s", call.Name))
	}

	args, err := parseArguments(call.Arguments)
	if err != nil {
		return failed(result, fmt.Errorf("invalid arguments for %s: %w", call.Name, err))
	}
	if err := t.Parameters.Validate(args); err != nil {
		return failed(result, fmt.Errorf("invalid arguments for %s: %w", call.Name, err))
	}

	defer func() {
		if rec := errors.RecoverPanic(recover()); rec.Recovered {
			result = failed(result, fmt.Errorf("%s: %s", call.Name, rec.ErrorMsg))
		}
	}()

	out, err := t.Handler(ctx, args)
	if err != nil {
		return failed(result, err)
	}
	content, err := encode(out)
	if err != nil {
		return failed(result, fmt.Errorf("encode result of %s: %w", call.Name, err))
	}
	result.Content = content
	return result
}

// ErrorPayload renders the in-band error shape.
func ErrorPayload(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}

func failed(result llm.ToolResult, err error) llm.ToolResult {
	result.Content = ErrorPayload(errors.New(errors.KindTool, "", err))
	result.IsError = true
	return result
}

func parseArguments(raw string) (map[string]interface{}, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

func encode(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.RawMessage:
		return string(x), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Typed adapts a handler taking a struct. Arguments are decoded with
// mapstructure using the struct's json tags.
func Typed[T any](fn func(ctx context.Context, args T) (interface{}, error)) Handler {
	return func(ctx context.Context, raw map[string]interface{}) (interface{}, error) {
		var args T
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &args,
			TagName:          "json",
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		return fn(ctx, args)
	}
}
