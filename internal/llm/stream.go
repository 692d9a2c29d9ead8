package llm

import (
	"bufio"
	"encoding/json"
	"io"
	"iter"
	"strings"

	"github.com/HexSleeves/pollen/internal/errors"
)

// Stream reads a chat/completions Server-Sent Events body.
//
// Content deltas are exposed through Chunks, which can be ranged over once.
// Tool-call fragments are accumulated by index as the body is read and are
// only available, together with the full text, from Result.
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader

	ranged bool
	done   bool
	eof    bool
	err    error

	content strings.Builder
	calls   []*ToolCall
	byIndex map[int]*ToolCall
	byPos   map[int]*ToolCall // unindexed fragments, by position in their delta
	model   string
	finish  string
	usage   Usage
}

type openaiStreamChunk struct {
	Model   string         `json:"model,omitempty"`
	Choices []openaiChoice `json:"choices"`
	Usage   *openaiUsage   `json:"usage,omitempty"`
	Error   *openaiError   `json:"error,omitempty"`
}

// NewStream wraps an SSE body. The stream owns body and closes it when
// the terminating event is seen, on read error, or on Close.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{
		body:    body,
		reader:  bufio.NewReader(body),
		byIndex: make(map[int]*ToolCall),
		byPos:   make(map[int]*ToolCall),
	}
}

// Chunks yields non-empty content deltas in arrival order. It is lazy: each
// delta is read from the network only when the consumer asks for it.
// A second call yields nothing.
func (s *Stream) Chunks() iter.Seq[string] {
	return func(yield func(string) bool) {
		if s.ranged {
			return
		}
		s.ranged = true
		for {
			delta, ok := s.next()
			if !ok {
				return
			}
			if !yield(delta) {
				return
			}
		}
	}
}

// Err returns the transport error that ended the stream, if any.
func (s *Stream) Err() error { return s.err }

// Result drains whatever is left of the body and returns the assembled
// completion. Content already yielded by Chunks is included.
func (s *Stream) Result() (*Response, error) {
	for {
		if _, ok := s.next(); !ok {
			break
		}
	}
	if s.err != nil {
		return nil, s.err
	}

	calls := make([]ToolCall, 0, len(s.calls))
	for _, c := range s.calls {
		calls = append(calls, *c)
	}
	return &Response{
		Result:       NewCompletion(s.content.String(), calls),
		Model:        s.model,
		FinishReason: s.finish,
		Usage:        s.usage,
	}, nil
}

// Close releases the body. Safe to call more than once.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	s.done = true
	return s.body.Close()
}

// next returns the next non-empty content delta. ok is false once the
// stream has ended for any reason.
func (s *Stream) next() (delta string, ok bool) {
	for {
		if s.done {
			return "", false
		}
		if s.eof {
			s.Close()
			return "", false
		}

		line, err := s.reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				s.err = errors.New(errors.KindTransport, "openai: read stream", err)
				s.Close()
				return "", false
			}
			s.eof = true
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.Close()
			return "", false
		}

		var chunk openaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			s.err = errors.Newf(errors.KindTransport, "openai", "%s: %s", chunk.Error.Type, chunk.Error.Message)
			s.Close()
			return "", false
		}

		if d := s.apply(chunk); d != "" {
			return d, true
		}
	}
}

func (s *Stream) apply(chunk openaiStreamChunk) string {
	if chunk.Model != "" {
		s.model = chunk.Model
	}
	if chunk.Usage != nil {
		s.usage = Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		}
	}
	if len(chunk.Choices) == 0 {
		return ""
	}

	choice := chunk.Choices[0]
	if choice.FinishReason != "" {
		s.finish = choice.FinishReason
	}
	for i, tc := range choice.Delta.ToolCalls {
		call := s.callFor(i, tc)
		if tc.ID != "" {
			call.ID = tc.ID
		}
		if tc.Function.Name != "" {
			call.Name = tc.Function.Name
		}
		call.Arguments += tc.Function.Arguments
	}

	delta := contentText(choice.Delta.Content)
	s.content.WriteString(delta)
	return delta
}

// callFor finds the partial call a fragment belongs to. Fragments without
// an index fall back to their position in the delta: one carrying an id or
// a function name starts a new call there, a bare arguments fragment
// extends the call last started at that position.
func (s *Stream) callFor(pos int, tc openaiToolCall) *ToolCall {
	if tc.Index != nil {
		if c, ok := s.byIndex[*tc.Index]; ok {
			return c
		}
		return s.newCall(func(c *ToolCall) { s.byIndex[*tc.Index] = c })
	}
	if tc.ID == "" && tc.Function.Name == "" {
		if c, ok := s.byPos[pos]; ok {
			return c
		}
		if len(s.calls) > 0 {
			return s.calls[len(s.calls)-1]
		}
	}
	if tc.ID != "" {
		for _, c := range s.calls {
			if c.ID == tc.ID {
				s.byPos[pos] = c
				return c
			}
		}
	}
	return s.newCall(func(c *ToolCall) { s.byPos[pos] = c })
}

func (s *Stream) newCall(track func(*ToolCall)) *ToolCall {
	c := &ToolCall{}
	track(c)
	s.calls = append(s.calls, c)
	return c
}
