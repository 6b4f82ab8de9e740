package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	msg := New(RoleUser, TextBlock{Text: "Hello world!"})

	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Created.IsZero())
	assert.Equal(t, RoleUser, msg.Role())
	assert.Equal(t, "Hello world!", msg.Text())

	other := New(RoleUser)
	assert.NotEqual(t, msg.ID, other.ID)
}

func TestMessage_ToolCalls(t *testing.T) {
	msg := New(RoleAssistant,
		TextBlock{Text: "Let me check."},
		ToolUseBlock{ToolCallID: "a", Name: "first"},
		ReasoningBlock{Text: "hmm"},
		ToolUseBlock{ToolCallID: "b", Name: "second"},
	)

	calls := msg.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ToolCallID)
	assert.Equal(t, "b", calls[1].ToolCallID)

	assert.Empty(t, New(RoleAssistant, TextBlock{Text: "done"}).ToolCalls())
}

func TestToolUseBlock_Params(t *testing.T) {
	t.Run("should decode object input", func(t *testing.T) {
		b := ToolUseBlock{Name: "calc", Input: json.RawMessage(`{"a":10,"b":20}`)}
		params, err := b.Params()
		require.NoError(t, err)
		assert.Equal(t, float64(10), params["a"])
	})

	t.Run("should return empty map for missing input", func(t *testing.T) {
		params, err := ToolUseBlock{Name: "noop"}.Params()
		require.NoError(t, err)
		assert.Empty(t, params)
	})

	t.Run("should fail on malformed input", func(t *testing.T) {
		_, err := ToolUseBlock{Name: "calc", Input: json.RawMessage(`[1,`)}.Params()
		assert.Error(t, err)
	})
}

func TestPending(t *testing.T) {
	b := WithPending(TextBlock{Text: "partial"}, true)
	assert.True(t, IsPending(b))

	final := WithPending(b, false)
	assert.False(t, IsPending(final))
	assert.Equal(t, "partial", final.(TextBlock).Text)

	anchor := AnchorBlock{ObjectID: "x", Version: "v1"}
	assert.Equal(t, anchor, WithPending(anchor, true))
	assert.False(t, IsPending(anchor))
}

func TestClone(t *testing.T) {
	orig := []Message{New(RoleUser, TextBlock{Text: "a"})}
	cp := Clone(orig)
	cp[0].Blocks = append(cp[0].Blocks, TextBlock{Text: "b"})
	cp[0].Blocks[0] = TextBlock{Text: "changed"}

	assert.Len(t, orig[0].Blocks, 1)
	assert.Equal(t, "a", orig[0].Text())
	assert.Nil(t, Clone(nil))
}

func TestMessageJSON(t *testing.T) {
	msg := Message{
		ID:      "m1",
		Created: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Sender:  Sender{Role: RoleAssistant},
		Blocks: []Block{
			TextBlock{Text: "hi", Disposition: DispositionArtifactUpdate},
			AnchorBlock{ObjectID: "doc", Version: "v2"},
			ToolUseBlock{ToolCallID: "c1", Name: "calc", Input: json.RawMessage(`{"a":1}`)},
			ToolResultBlock{ToolCallID: "c1", Error: "boom"},
			SelectBlock{Options: []string{"yes", "no"}},
			ToolkitBlock{},
			StatsBlock{Model: "m", Usage: Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}, ToolCalls: 1},
		},
	}

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"type":"toolkit"}`)
	assert.Contains(t, string(data), `"type":"anchor","objectId":"doc"`)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, msg, decoded)
}

func TestUnmarshalBlock_UnknownType(t *testing.T) {
	_, err := UnmarshalBlock([]byte(`{"type":"hologram"}`))
	assert.ErrorContains(t, err, "unknown block type")
}
