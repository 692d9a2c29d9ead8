package chat

import (
	"context"

	"github.com/HexSleeves/pollen/internal/bus"
	"github.com/HexSleeves/pollen/internal/errors"
	"github.com/HexSleeves/pollen/internal/llm"
	"github.com/HexSleeves/pollen/internal/schema"
)

// Structured is a validated structured reply.
type Structured struct {
	Message llm.Message
	Data    map[string]interface{}
}

// Decode copies the validated data into out through its json tags.
func (st Structured) Decode(sch *schema.Schema, out interface{}) error {
	return sch.Decode(st.Message.Content, out)
}

// ResolveStructured runs any tool rounds first, then asks for a reply in
// the strict JSON shape of sch without tools attached. A tool-phase reply
// that is already a final answer is discarded in favour of the structured
// call. On success the structured message is appended to conv.
//
// A reply that is not valid JSON or does not match sch returns an error
// wrapping *schema.ValidationError; conv is left ready for another try.
func (s *Session) ResolveStructured(ctx context.Context, conv *Conversation, sch *schema.Schema) (*Structured, error) {
	if err := conv.ReadyForCompletion(); err != nil {
		return nil, err
	}

	round := 1
	if s.Tools.Len() > 0 {
		for ; round <= s.maxRounds(); round++ {
			resp, err := s.complete(ctx, s.request(conv, round))
			if err != nil {
				return nil, err
			}
			r, ok := resp.Result.(llm.ToolRequest)
			if !ok {
				break
			}
			if err := s.runTools(ctx, conv, r, round); err != nil {
				return nil, err
			}
		}
	}

	resp, err := s.complete(ctx, &llm.Request{
		Messages:        conv.Messages(),
		ResponseFormat:  sch,
		ReasoningEffort: s.Options.ReasoningEffort,
	})
	if err != nil {
		return nil, err
	}
	if r, ok := resp.Result.(llm.ToolRequest); ok {
		s.drop(r, round)
	}

	content := llm.Text(resp.Result)
	data, err := sch.Parse(content)
	if err != nil {
		s.logf("⚠ Structured reply rejected: %v", err)
		s.publish(bus.Message{Type: bus.MsgValidationFailed, Payload: err.Error()})
		return nil, errors.New(errors.KindValidation, "structured", err)
	}

	msg, err := s.finish(conv, llm.AssistantMessage(content))
	if err != nil {
		return nil, err
	}
	return &Structured{Message: msg, Data: data}, nil
}
