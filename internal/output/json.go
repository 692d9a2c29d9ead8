package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/HexSleeves/pollen/internal/bus"
)

// EventType represents the type of JSON output event.
type EventType string

const (
	// EventSessionStart marks the beginning of a command.
	EventSessionStart EventType = "session_start"
	// EventSessionEnd carries the final answer and run totals.
	EventSessionEnd EventType = "session_end"
	// EventBus wraps one message published on the bus.
	EventBus EventType = "event"
	// EventError is emitted when the command fails.
	EventError EventType = "error"
)

// SessionSummary is the payload of the final event.
type SessionSummary struct {
	SessionID    string        `json:"session_id"`
	Command      string        `json:"command"`
	Answer       string        `json:"answer,omitempty"`
	Data         interface{}   `json:"data,omitempty"`
	Completions  int           `json:"completions"`
	ToolCalls    int           `json:"tool_calls"`
	ToolErrors   int           `json:"tool_errors"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Duration     time.Duration `json:"duration_ms"`
}

// ErrorEvent represents an error that ended the command.
type ErrorEvent struct {
	Message   string `json:"message"`
	ErrorType string `json:"error_type,omitempty"`
}

// JSONEvent is the wrapper for all JSON output lines.
type JSONEvent struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Event     *bus.Message    `json:"event,omitempty"`
	Session   *SessionSummary `json:"session,omitempty"`
	Error     *ErrorEvent     `json:"error,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// JSONWriter serializes bus traffic as newline-delimited JSON and keeps
// running totals for the closing summary.
type JSONWriter struct {
	mu        sync.Mutex
	w         io.Writer
	sessionID string
	startTime time.Time
	maxOutput int
	totals    SessionSummary
	chunks    bool
}

// NewJSONWriter creates a new JSON writer.
func NewJSONWriter(w io.Writer, sessionID string) *JSONWriter {
	return &JSONWriter{
		w:         w,
		sessionID: sessionID,
		startTime: time.Now(),
		maxOutput: 10000,
	}
}

// SetMaxOutput sets the maximum string payload size before truncation.
func (jw *JSONWriter) SetMaxOutput(max int) {
	jw.maxOutput = max
}

// IncludeChunks makes Attach forward stream.chunk messages, which are
// skipped by default.
func (jw *JSONWriter) IncludeChunks(on bool) {
	jw.chunks = on
}

func (jw *JSONWriter) writeEvent(event JSONEvent) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	event.Timestamp = time.Now()
	if jw.sessionID != "" {
		event.SessionID = jw.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(jw.w, string(data))
	return err
}

// Attach subscribes the writer to every message published on b.
func (jw *JSONWriter) Attach(b *bus.MessageBus) {
	b.SubscribeAll(func(m bus.Message) {
		if m.Type == bus.MsgStreamChunk && !jw.chunks {
			return
		}
		jw.count(m)
		if s, ok := m.Payload.(string); ok && len(s) > jw.maxOutput {
			m.Payload = s[:jw.maxOutput] + "... [truncated]"
		}
		jw.writeEvent(JSONEvent{Type: EventBus, Event: &m}) //nolint:errcheck
	})
}

func (jw *JSONWriter) count(m bus.Message) {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	switch m.Type {
	case bus.MsgCompletionDone:
		jw.totals.Completions++
		if info, ok := m.Payload.(bus.CompletionInfo); ok {
			jw.totals.InputTokens += info.InputTokens
			jw.totals.OutputTokens += info.OutputTokens
		}
	case bus.MsgToolResult:
		jw.totals.ToolCalls++
		if info, ok := m.Payload.(bus.ToolInfo); ok && info.IsError {
			jw.totals.ToolErrors++
		}
	}
}

// WriteSessionStart emits a session start event.
func (jw *JSONWriter) WriteSessionStart(command string) error {
	return jw.writeEvent(JSONEvent{Type: EventSessionStart, Message: command})
}

// WriteSessionEnd emits the final summary with the accumulated totals.
func (jw *JSONWriter) WriteSessionEnd(command, answer string, data interface{}) error {
	jw.mu.Lock()
	summary := jw.totals
	jw.mu.Unlock()

	summary.SessionID = jw.sessionID
	summary.Command = command
	summary.Answer = answer
	summary.Data = data
	summary.Duration = time.Since(jw.startTime) / time.Millisecond
	return jw.writeEvent(JSONEvent{Type: EventSessionEnd, Session: &summary})
}

// WriteError emits an error event.
func (jw *JSONWriter) WriteError(message, errorType string) error {
	return jw.writeEvent(JSONEvent{
		Type:  EventError,
		Error: &ErrorEvent{Message: message, ErrorType: errorType},
	})
}

// SetSessionID sets the session ID (used when the session is named after
// the writer is built).
func (jw *JSONWriter) SetSessionID(sessionID string) {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	jw.sessionID = sessionID
}
