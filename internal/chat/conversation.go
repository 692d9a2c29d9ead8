// Package chat runs the tool-call round-trip loop over a Conversation.
package chat

import (
	"github.com/HexSleeves/pollen/internal/errors"
	"github.com/HexSleeves/pollen/internal/llm"
)

// DefaultSystemPrompt seeds fresh conversations.
const DefaultSystemPrompt = "You are a helpful assistant."

// Conversation is an append-only message log that refuses appends which
// would break tool-call pairing:
//
//   - a tool message must answer a request of the immediately preceding
//     assistant message, in the order the requests were made;
//   - nothing but tool messages may follow an assistant message until all
//     of its requests are answered.
type Conversation struct {
	msgs    []llm.Message
	pending []string
}

// NewConversation starts a conversation, with a system message when system is non-empty.
func NewConversation(system string) *Conversation {
	c := &Conversation{}
	if system != "" {
		c.msgs = append(c.msgs, llm.SystemMessage(system))
	}
	return c
}

// FromMessages rebuilds a conversation, checking every append.
func FromMessages(msgs []llm.Message) (*Conversation, error) {
	c := &Conversation{}
	for _, m := range msgs {
		if err := c.Append(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Append adds m if it keeps the conversation well-formed.
func (c *Conversation) Append(m llm.Message) error {
	switch m.Role {
	case llm.RoleTool:
		if len(c.pending) == 0 {
			return errors.Newf(errors.KindConversation, "conversation",
				"tool result %q does not answer an outstanding request", m.ToolCallID)
		}
		if m.ToolCallID != c.pending[0] {
			return errors.Newf(errors.KindConversation, "conversation",
				"tool result %q out of order, expected %q", m.ToolCallID, c.pending[0])
		}
		c.pending = c.pending[1:]

	case llm.RoleAssistant, llm.RoleUser, llm.RoleSystem:
		if len(c.pending) > 0 {
			return errors.Newf(errors.KindConversation, "conversation",
				"%s message while %d tool request(s) are unanswered", m.Role, len(c.pending))
		}
		if m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0 {
			seen := make(map[string]bool, len(m.ToolCalls))
			ids := make([]string, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				if tc.ID == "" || seen[tc.ID] {
					return errors.Newf(errors.KindConversation, "conversation",
						"tool request %q has a missing or duplicate id", tc.Name)
				}
				seen[tc.ID] = true
				ids = append(ids, tc.ID)
			}
			c.pending = ids
		}

	default:
		return errors.Newf(errors.KindConversation, "conversation", "unknown role %q", m.Role)
	}

	c.msgs = append(c.msgs, m)
	return nil
}

// AddUser appends a user message.
func (c *Conversation) AddUser(text string) error {
	return c.Append(llm.UserMessage(text))
}

// AddToolResult appends the tool message for r.
func (c *Conversation) AddToolResult(r llm.ToolResult) error {
	return c.Append(r.Message())
}

// ReadyForCompletion reports whether the conversation may be sent: it must
// end in a user or tool message with no requests left unanswered.
func (c *Conversation) ReadyForCompletion() error {
	if len(c.pending) > 0 {
		return errors.Newf(errors.KindConversation, "conversation",
			"%d tool request(s) are unanswered", len(c.pending))
	}
	last, ok := c.Last()
	if !ok || (last.Role != llm.RoleUser && last.Role != llm.RoleTool) {
		return errors.Newf(errors.KindConversation, "conversation",
			"must end in a user or tool message")
	}
	return nil
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []llm.Message {
	out := make([]llm.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.msgs) }

// Last returns the most recent message.
func (c *Conversation) Last() (llm.Message, bool) {
	if len(c.msgs) == 0 {
		return llm.Message{}, false
	}
	return c.msgs[len(c.msgs)-1], true
}

