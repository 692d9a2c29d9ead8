// Package bus fans loop events out to the printer, the TUI and metrics.
package bus

import (
	"sync"
	"time"
)

type MsgType string

const (
	MsgCompletionStarted MsgType = "completion.started"
	MsgCompletionDone    MsgType = "completion.done"
	MsgCompletionFailed  MsgType = "completion.failed"
	MsgToolCalled        MsgType = "tool.called"
	MsgToolResult        MsgType = "tool.result"
	MsgToolsDropped      MsgType = "tool.dropped"
	MsgStreamChunk       MsgType = "stream.chunk"
	MsgAnswer            MsgType = "answer"
	MsgValidationFailed  MsgType = "validation.failed"
	MsgSpeechHeard       MsgType = "speech.heard"
	MsgSpeechSpoken      MsgType = "speech.spoken"
	MsgSpeechFailed      MsgType = "speech.failed"
	MsgSystemError       MsgType = "system.error"
)

type Message struct {
	Type    MsgType     `json:"type"`
	Session string      `json:"session,omitempty"`
	Round   int         `json:"round,omitempty"`
	Tool    string      `json:"tool,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Time    time.Time   `json:"time"`
}

// CompletionInfo is the payload of MsgCompletionDone.
type CompletionInfo struct {
	Model        string        `json:"model,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
	ToolCalls    int           `json:"tool_calls"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
	Duration     time.Duration `json:"duration"`
	Streamed     bool          `json:"streamed,omitempty"`
}

// ToolInfo is the payload of MsgToolCalled and MsgToolResult.
type ToolInfo struct {
	CallID    string        `json:"call_id"`
	Arguments string        `json:"arguments,omitempty"`
	Content   string        `json:"content,omitempty"`
	IsError   bool          `json:"is_error,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

type Handler func(msg Message)

type MessageBus struct {
	mu       sync.RWMutex
	handlers map[MsgType][]Handler
	history  []Message
	maxHist  int
}

func New(maxHistory int) *MessageBus {
	if maxHistory <= 0 {
		maxHistory = 10000
	}
	return &MessageBus{
		handlers: make(map[MsgType][]Handler),
		maxHist:  maxHistory,
	}
}

func (b *MessageBus) Subscribe(msgType MsgType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[msgType] = append(b.handlers[msgType], h)
}

func (b *MessageBus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers["*"] = append(b.handlers["*"], h)
}

// Publish delivers msg synchronously to type subscribers, then wildcard
// subscribers. A nil bus drops the message.
func (b *MessageBus) Publish(msg Message) {
	if b == nil {
		return
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}

	b.mu.Lock()
	b.history = append(b.history, msg)
	if len(b.history) > b.maxHist {
		b.history = b.history[len(b.history)-b.maxHist:]
	}
	// Copy handlers under lock
	specific := make([]Handler, len(b.handlers[msg.Type]))
	copy(specific, b.handlers[msg.Type])
	wildcard := make([]Handler, len(b.handlers["*"]))
	copy(wildcard, b.handlers["*"])
	b.mu.Unlock()

	for _, h := range specific {
		h(msg)
	}
	for _, h := range wildcard {
		h(msg)
	}
}

func (b *MessageBus) History(n int) []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	start := len(b.history) - n
	result := make([]Message, n)
	copy(result, b.history[start:])
	return result
}
