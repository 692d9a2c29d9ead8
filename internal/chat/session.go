package chat

import (
	"context"
	"io"
	"log"
	"time"
	"unicode/utf8"

	"github.com/HexSleeves/pollen/internal/bus"
	"github.com/HexSleeves/pollen/internal/errors"
	"github.com/HexSleeves/pollen/internal/llm"
	"github.com/HexSleeves/pollen/internal/tools"
)

// Options tune the loop.
type Options struct {
	// MaxRounds is how many completions may request tools before the
	// next request's tool calls are dropped. 1 means one batched tool
	// round and one finalization call.
	MaxRounds int
	// ReattachTools re-sends the declarations on follow-up calls.
	ReattachTools   bool
	ReasoningEffort string
	SessionID       string
}

// DefaultOptions returns one tool round with declarations re-attached.
func DefaultOptions() Options {
	return Options{MaxRounds: 1, ReattachTools: true}
}

// Session resolves conversations against one endpoint with one tool set.
// It holds no conversation state of its own.
type Session struct {
	Client  llm.Completer
	Tools   *tools.Registry
	Bus     *bus.MessageBus
	Logger  *log.Logger
	Options Options
}

// NewSession builds a session with DefaultOptions and a discarding logger.
func NewSession(client llm.Completer, registry *tools.Registry) *Session {
	return &Session{
		Client:  client,
		Tools:   registry,
		Logger:  log.New(io.Discard, "", 0),
		Options: DefaultOptions(),
	}
}

// Resolve drives conv to a final answer. The final assistant message is
// appended to conv and returned. Tool failures never abort the turn;
// transport failures do, leaving conv with whatever was appended so far.
func (s *Session) Resolve(ctx context.Context, conv *Conversation) (llm.Message, error) {
	if err := conv.ReadyForCompletion(); err != nil {
		return llm.Message{}, err
	}

	for round := 1; ; round++ {
		resp, err := s.complete(ctx, s.request(conv, round))
		if err != nil {
			return llm.Message{}, err
		}

		switch r := resp.Result.(type) {
		case llm.FinalAnswer:
			return s.finish(conv, r.Message())
		case llm.ToolRequest:
			if round > s.maxRounds() {
				s.drop(r, round)
				return s.finish(conv, llm.AssistantMessage(r.Content))
			}
			if err := s.runTools(ctx, conv, r, round); err != nil {
				return llm.Message{}, err
			}
		}
	}
}

func (s *Session) maxRounds() int {
	if s.Options.MaxRounds < 1 {
		return 1
	}
	return s.Options.MaxRounds
}

// request builds the call for round. Declarations go out on the first
// call and, when ReattachTools is set, on every follow-up; only the first
// call sets tool_choice.
func (s *Session) request(conv *Conversation, round int) *llm.Request {
	req := &llm.Request{
		Messages:        conv.Messages(),
		ReasoningEffort: s.Options.ReasoningEffort,
	}
	if s.Tools.Len() > 0 && (round == 1 || s.Options.ReattachTools) {
		req.Tools = s.Tools.Declarations()
		if round == 1 {
			req.ToolChoice = "auto"
		}
	}
	return req
}

func (s *Session) complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.publish(bus.Message{Type: bus.MsgCompletionStarted})
	start := time.Now()
	resp, err := s.Client.Complete(ctx, req)
	if err != nil {
		s.failed(err)
		return nil, err
	}
	s.completed(resp, time.Since(start), false)
	return resp, nil
}

func (s *Session) completed(resp *llm.Response, d time.Duration, streamed bool) {
	calls := 0
	if r, ok := resp.Result.(llm.ToolRequest); ok {
		calls = len(r.Calls)
	}
	s.publish(bus.Message{Type: bus.MsgCompletionDone, Payload: bus.CompletionInfo{
		Model:        resp.Model,
		FinishReason: resp.FinishReason,
		ToolCalls:    calls,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Duration:     d,
		Streamed:     streamed,
	}})
}

func (s *Session) failed(err error) {
	s.logf("⚠ Completion failed (%s): %v", errors.ClassifyError(err), err)
	s.publish(bus.Message{Type: bus.MsgCompletionFailed, Payload: err.Error()})
}

// runTools appends the request and one result per call, in request order.
func (s *Session) runTools(ctx context.Context, conv *Conversation, r llm.ToolRequest, round int) error {
	r = r.WithIDs()
	if err := conv.Append(r.Message()); err != nil {
		return err
	}
	for _, call := range r.Calls {
		s.logf("🔧 Tool: %s %s", call.Name, call.Arguments)
		s.publish(bus.Message{Type: bus.MsgToolCalled, Round: round, Tool: call.Name, Payload: bus.ToolInfo{
			CallID:    call.ID,
			Arguments: call.Arguments,
		}})

		start := time.Now()
		res := s.Tools.Execute(ctx, call)
		if res.IsError {
			s.logf("  ⚠ Tool error: %s", res.Content)
		} else {
			s.logf("  ✓ Result: %s", truncate(res.Content, 200))
		}
		s.publish(bus.Message{Type: bus.MsgToolResult, Round: round, Tool: call.Name, Payload: bus.ToolInfo{
			CallID:   call.ID,
			Content:  res.Content,
			IsError:  res.IsError,
			Duration: time.Since(start),
		}})

		if err := conv.AddToolResult(res); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) drop(r llm.ToolRequest, round int) {
	s.logf("⚠ Round budget (%d) spent, dropping %d tool request(s)", s.maxRounds(), len(r.Calls))
	for _, call := range r.Calls {
		s.publish(bus.Message{Type: bus.MsgToolsDropped, Round: round, Tool: call.Name})
	}
}

func (s *Session) finish(conv *Conversation, m llm.Message) (llm.Message, error) {
	if err := conv.Append(m); err != nil {
		return llm.Message{}, err
	}
	s.publish(bus.Message{Type: bus.MsgAnswer, Payload: m.Content})
	return m, nil
}

func (s *Session) publish(msg bus.Message) {
	if s.Bus == nil {
		return
	}
	msg.Session = s.Options.SessionID
	s.Bus.Publish(msg)
}

func (s *Session) logf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
