package chat

import (
	"context"
	"iter"
	"time"

	"github.com/HexSleeves/pollen/internal/bus"
	"github.com/HexSleeves/pollen/internal/errors"
	"github.com/HexSleeves/pollen/internal/llm"
)

// ErrAbandoned is reported by StreamTurn.Answer when the consumer stopped
// ranging over Chunks before the turn finished. Nothing from the
// interrupted call is appended.
var ErrAbandoned = errors.Newf(errors.KindConversation, "stream", "abandoned before completion")

// StreamTurn is one streamed resolution of a conversation.
type StreamTurn struct {
	s      *Session
	ctx    context.Context
	conv   *Conversation
	stream *llm.Stream
	start  time.Time

	ranged bool
	answer llm.Message
	err    error
}

// ResolveStream opens the first streamed call and returns the turn.
// The client must implement llm.Streamer.
func (s *Session) ResolveStream(ctx context.Context, conv *Conversation) (*StreamTurn, error) {
	if _, ok := s.Client.(llm.Streamer); !ok {
		return nil, errors.Newf(errors.KindConfig, "stream", "provider does not support streaming")
	}
	if err := conv.ReadyForCompletion(); err != nil {
		return nil, err
	}

	t := &StreamTurn{s: s, ctx: ctx, conv: conv}
	if err := t.open(1); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *StreamTurn) open(round int) error {
	t.s.publish(bus.Message{Type: bus.MsgCompletionStarted, Round: round})
	t.start = time.Now()
	stream, err := t.s.Client.(llm.Streamer).Stream(t.ctx, t.s.request(t.conv, round))
	if err != nil {
		t.s.failed(err)
		return err
	}
	t.stream = stream
	return nil
}

// Chunks yields every content fragment of the turn, across the tool round
// and the finalization call, as it arrives. Tool calls are dispatched
// between the two. Like llm.Stream it can be ranged over once.
func (t *StreamTurn) Chunks() iter.Seq[string] {
	return func(yield func(string) bool) {
		if t.ranged {
			return
		}
		t.ranged = true
		t.run(yield)
	}
}

// Answer finishes the turn if Chunks was never ranged and returns the
// final assistant message, which has been appended to the conversation.
func (t *StreamTurn) Answer() (llm.Message, error) {
	if !t.ranged {
		for range t.Chunks() {
		}
	}
	return t.answer, t.err
}

// Err returns the error that ended the turn, if any.
func (t *StreamTurn) Err() error { return t.err }

func (t *StreamTurn) run(yield func(string) bool) {
	for round := 1; ; round++ {
		for chunk := range t.stream.Chunks() {
			t.s.publish(bus.Message{Type: bus.MsgStreamChunk, Round: round, Payload: chunk})
			if !yield(chunk) {
				t.stream.Close()
				t.err = ErrAbandoned
				return
			}
		}

		resp, err := t.stream.Result()
		t.stream.Close()
		if err != nil {
			t.s.failed(err)
			t.err = err
			return
		}
		t.s.completed(resp, time.Since(t.start), true)

		switch r := resp.Result.(type) {
		case llm.FinalAnswer:
			t.answer, t.err = t.s.finish(t.conv, r.Message())
			return
		case llm.ToolRequest:
			if round > t.s.maxRounds() {
				t.s.drop(r, round)
				t.answer, t.err = t.s.finish(t.conv, llm.AssistantMessage(r.Content))
				return
			}
			if err := t.s.runTools(t.ctx, t.conv, r, round); err != nil {
				t.err = err
				return
			}
			if err := t.open(round + 1); err != nil {
				t.err = err
				return
			}
		}
	}
}
