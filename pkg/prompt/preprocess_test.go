package prompt

import (
	"encoding/json"
	"testing"

	"github.com/harun/colloquy/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreprocess(t *testing.T) {
	t.Run("should drop bookkeeping blocks and empty messages", func(t *testing.T) {
		out, err := Preprocess([]message.Message{
			message.New(message.RoleUser, message.AnchorBlock{ObjectID: "a", Version: "1"}),
			message.New(message.RoleAssistant, message.StatsBlock{Model: "m"}),
			message.New(message.RoleUser, message.TextBlock{Text: "hi"}),
		})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, message.RoleUser, out[0].Role())
		assert.Equal(t, []message.Block{message.TextBlock{Text: "hi"}}, out[0].Blocks)
	})

	t.Run("should merge consecutive messages from the same role", func(t *testing.T) {
		out, err := Preprocess([]message.Message{
			message.New(message.RoleUser, message.TextBlock{Text: "one"}),
			message.New(message.RoleUser, message.TextBlock{Text: "two"}),
			message.New(message.RoleAssistant, message.TextBlock{Text: "three"}),
		})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Len(t, out[0].Blocks, 2)
	})

	t.Run("should render presentation blocks as tags", func(t *testing.T) {
		out, err := Preprocess([]message.Message{
			message.New(message.RoleAssistant,
				message.StatusBlock{Text: "working"},
				message.SelectBlock{Options: []string{"a", "b"}},
				message.ToolkitBlock{},
			),
		})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, []message.Block{
			message.TextBlock{Text: "<status>working</status>"},
			message.TextBlock{Text: "<select><option>a</option><option>b</option></select>"},
			message.TextBlock{Text: "<toolkit/>"},
		}, out[0].Blocks)
	})

	t.Run("should start at the last summary", func(t *testing.T) {
		out, err := Preprocess([]message.Message{
			message.New(message.RoleUser, message.TextBlock{Text: "old"}),
			message.New(message.RoleAssistant, message.TextBlock{Text: "dropped"}, message.SummaryBlock{Text: "we talked"}),
			message.New(message.RoleUser, message.TextBlock{Text: "new"}),
		})
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.Equal(t, []message.Block{message.TextBlock{Text: "<summary>we talked</summary>"}}, out[0].Blocks)
		assert.Equal(t, "new", out[1].Text())
	})

	t.Run("should reject summaries outside assistant messages", func(t *testing.T) {
		_, err := Preprocess([]message.Message{message.New(message.RoleUser, message.SummaryBlock{Text: "x"})})
		var pErr *PreprocessingError
		require.ErrorAs(t, err, &pErr)
		assert.Contains(t, pErr.Reason, "only allowed in assistant messages")
	})

	t.Run("should reject tool results in user messages", func(t *testing.T) {
		_, err := Preprocess([]message.Message{message.New(message.RoleUser, message.ToolResultBlock{ToolCallID: "c"})})
		var pErr *PreprocessingError
		assert.ErrorAs(t, err, &pErr)
	})

	t.Run("should synthesize missing tool results", func(t *testing.T) {
		out, err := Preprocess([]message.Message{
			message.New(message.RoleUser, message.TextBlock{Text: "go"}),
			message.New(message.RoleAssistant,
				message.ToolUseBlock{ToolCallID: "c1", Name: "a", Input: json.RawMessage(`{}`)},
				message.ToolUseBlock{ToolCallID: "c2", Name: "b", Input: json.RawMessage(`{}`)},
			),
			message.New(message.RoleTool, message.ToolResultBlock{ToolCallID: "c1", Output: "ok"}),
			message.New(message.RoleAssistant, message.ToolUseBlock{ToolCallID: "c3", Name: "c"}),
		})
		require.NoError(t, err)
		require.Len(t, out, 5)

		first := out[2].ToolResults()
		require.Len(t, first, 2)
		assert.Equal(t, "ok", first[0].Output)
		assert.Equal(t, "c2", first[1].ToolCallID)
		assert.Equal(t, MissingToolResult, first[1].Error)

		assert.Equal(t, message.RoleTool, out[4].Role())
		assert.Equal(t, "c3", out[4].ToolResults()[0].ToolCallID)
	})
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, replyPrimingTokens, EstimateTokens("", nil))

	msgs := []message.Message{message.New(message.RoleUser, message.TextBlock{Text: "12345678"})}
	assert.Equal(t, replyPrimingTokens+messageDelimiterTokens+2, EstimateTokens("", msgs))
	assert.Equal(t, replyPrimingTokens+2*messageDelimiterTokens+2+1, EstimateTokens("abc", msgs))
}
