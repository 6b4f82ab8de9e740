package message

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Sender describes the author of a message.
type Sender struct {
	Role Role `json:"role"`
}

// Message is a single conversation turn.
type Message struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Sender  Sender    `json:"sender"`
	Blocks  []Block   `json:"-"`
}

// New creates a message with a fresh id and creation time.
func New(role Role, blocks ...Block) Message {
	return Message{
		ID:      uuid.New().String(),
		Created: time.Now().UTC(),
		Sender:  Sender{Role: role},
		Blocks:  blocks,
	}
}

// Role returns the sender role.
func (m Message) Role() Role {
	return m.Sender.Role
}

// ToolCalls returns the tool_use blocks of the message in order.
func (m Message) ToolCalls() []ToolUseBlock {
	var calls []ToolUseBlock
	for _, b := range m.Blocks {
		if call, ok := b.(ToolUseBlock); ok {
			calls = append(calls, call)
		}
	}
	return calls
}

// ToolResults returns the tool_result blocks of the message in order.
func (m Message) ToolResults() []ToolResultBlock {
	var results []ToolResultBlock
	for _, b := range m.Blocks {
		if res, ok := b.(ToolResultBlock); ok {
			results = append(results, res)
		}
	}
	return results
}

// Text concatenates the text blocks of the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Blocks {
		if t, ok := b.(TextBlock); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// Clone returns a copy of msgs whose block slices can be appended to independently.
func Clone(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].Blocks = append([]Block(nil), m.Blocks...)
	}
	return out
}
