package model

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/harun/colloquy/pkg/artifact"
	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/stream"
	"github.com/harun/colloquy/pkg/toolkit"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvents struct {
	events []int
	pos    int
	err    error
	closed bool
}

func (f *fakeEvents) Next() bool {
	if f.pos >= len(f.events) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeEvents) Current() int { return f.events[f.pos-1] }
func (f *fakeEvents) Err() error   { return f.err }
func (f *fakeEvents) Close() error { f.closed = true; return nil }

func drain(t *testing.T, src stream.Source) []stream.Part {
	t.Helper()
	var parts []stream.Part
	for src.Next() {
		parts = append(parts, src.Current())
	}
	require.NoError(t, src.Err())
	return parts
}

func conversation() []message.Message {
	return []message.Message{
		message.New(message.RoleUser, message.TextBlock{Text: "What is 10 + 20?"}),
		message.New(message.RoleAssistant,
			message.TextBlock{Text: "Let me calculate."},
			message.ToolUseBlock{ToolCallID: "call-1", Name: "Calculator", Input: json.RawMessage(`{"a":10,"b":20}`)},
		),
		message.New(message.RoleTool, message.ToolResultBlock{ToolCallID: "call-1", Name: "Calculator", Output: "30"}),
		message.New(message.RoleUser, message.TextBlock{Text: "Thanks"}),
	}
}

func TestPartSource(t *testing.T) {
	t.Run("should expand events and flush at the end", func(t *testing.T) {
		events := &fakeEvents{events: []int{0, 2, 1}}
		src := newPartSource[int](events, func(n int) []stream.Part {
			parts := make([]stream.Part, n)
			for i := range parts {
				parts[i] = stream.TextDelta{Delta: "x"}
			}
			return parts
		}, func() []stream.Part {
			return []stream.Part{stream.Finish{Reason: "stop"}}
		})

		parts := drain(t, src)
		assert.Len(t, parts, 4)
		assert.Equal(t, stream.Finish{Reason: "stop"}, parts[3])

		require.NoError(t, src.Close())
		assert.True(t, events.closed)
	})

	t.Run("should not flush after a stream error", func(t *testing.T) {
		events := &fakeEvents{err: errors.New("connection reset")}
		flushed := false
		src := newPartSource[int](events, func(int) []stream.Part { return nil }, func() []stream.Part {
			flushed = true
			return nil
		})

		assert.False(t, src.Next())
		assert.EqualError(t, src.Err(), "connection reset")
		assert.False(t, flushed)
	})
}

func TestNewService(t *testing.T) {
	for _, provider := range []string{ProviderAnthropic, ProviderOpenAI, ProviderEcho} {
		svc, err := NewService(Config{Provider: provider, APIKey: "test"})
		require.NoError(t, err)
		assert.Equal(t, provider, svc.Provider())
	}

	_, err := NewService(Config{Provider: "gemini"})
	assert.Error(t, err)
}

func TestEcho(t *testing.T) {
	src, err := Echo{}.Stream(context.Background(), Request{Messages: conversation()})
	require.NoError(t, err)

	blocks, err := stream.NewConsumer(stream.Hooks{}).Collect(src)
	require.NoError(t, err)
	require.NotEmpty(t, blocks)
	assert.Equal(t, message.TextBlock{Text: "Thanks"}, blocks[0])
}

func TestAnthropicMessages(t *testing.T) {
	params := anthropicParams(Request{
		Model:    "claude-sonnet-4-5",
		System:   "Be brief.",
		Messages: conversation(),
		Tools: []toolkit.Spec{{
			Name:        "Calculator",
			Description: "Adds numbers",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}, "required": []string{"a"}},
		}},
	})

	assert.Equal(t, int64(defaultMaxTokens), params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "Be brief.", params.System[0].Text)

	// The tool result and the following user text share one user turn.
	require.Len(t, params.Messages, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, params.Messages[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, params.Messages[1].Role)
	require.Len(t, params.Messages[1].Content, 2)
	require.NotNil(t, params.Messages[1].Content[1].OfToolUse)
	assert.Equal(t, "call-1", params.Messages[1].Content[1].OfToolUse.ID)

	require.Len(t, params.Messages[2].Content, 2)
	require.NotNil(t, params.Messages[2].Content[0].OfToolResult)
	assert.Equal(t, "call-1", params.Messages[2].Content[0].OfToolResult.ToolUseID)

	require.Len(t, params.Tools, 1)
	assert.Equal(t, []string{"a"}, params.Tools[0].OfTool.InputSchema.Required)
}

func anthropicEvents(t *testing.T, raw ...string) []stream.Part {
	t.Helper()
	tr := newAnthropicTranslator()
	var parts []stream.Part
	for _, r := range raw {
		var ev anthropic.MessageStreamEventUnion
		require.NoError(t, json.Unmarshal([]byte(r), &ev))
		parts = append(parts, tr.translate(ev)...)
	}
	return parts
}

func TestAnthropicTranslator(t *testing.T) {
	parts := anthropicEvents(t,
		`{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5","content":[],"usage":{"input_tokens":12,"output_tokens":1}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me "}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"check."}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"Calculator","input":{}}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"a\":10,"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"b\":20}"}}`,
		`{"type":"content_block_stop","index":1}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":30}}`,
		`{"type":"message_stop"}`,
	)

	require.Len(t, parts, 7)
	assert.Equal(t, stream.ResponseMetadata{Model: "claude-sonnet-4-5"}, parts[0])
	assert.Equal(t, stream.TextStart{}, parts[1])
	assert.Equal(t, stream.TextDelta{Delta: "Let me "}, parts[2])
	assert.Equal(t, stream.TextEnd{}, parts[4])

	call, ok := parts[5].(stream.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "toolu_1", call.ID)
	assert.Equal(t, "Calculator", call.Name)
	assert.JSONEq(t, `{"a":10,"b":20}`, string(call.Input))

	assert.Equal(t, stream.Finish{
		Reason: "tool_use",
		Usage:  message.Usage{InputTokens: 12, OutputTokens: 30, TotalTokens: 42},
	}, parts[6])
}

func TestAnthropicTranslator_Thinking(t *testing.T) {
	parts := anthropicEvents(t,
		`{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":"","signature":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"Adding."}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig"}}`,
		`{"type":"content_block_stop","index":0}`,
	)

	assert.Equal(t, []stream.Part{
		stream.ReasoningStart{},
		stream.ReasoningDelta{Delta: "Adding."},
		stream.ReasoningEnd{Signature: "sig"},
	}, parts)
}

func TestOpenAIMessages(t *testing.T) {
	msgs := openaiMessages("Be brief.", conversation())

	require.Len(t, msgs, 5)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	require.Len(t, msgs[2].OfAssistant.ToolCalls, 1)
	assert.Equal(t, "call-1", msgs[2].OfAssistant.ToolCalls[0].ID)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "call-1", msgs[3].OfTool.ToolCallID)
	assert.NotNil(t, msgs[4].OfUser)

	t.Run("should separate text blocks of a grouped turn", func(t *testing.T) {
		update := artifact.UpdateBlock([]artifact.Change{{ID: "doc-1", Version: "v2", Diff: "-a\n+b\n"}})
		grouped := message.New(message.RoleUser,
			message.TextBlock{Text: "Hello"},
			message.AnchorBlock{ObjectID: "doc-1", Version: "v2"},
			update,
			message.TextBlock{Text: "And now?"},
		)

		msgs := openaiMessages("", []message.Message{grouped})

		require.Len(t, msgs, 1)
		require.NotNil(t, msgs[0].OfUser)
		content := msgs[0].OfUser.Content.OfString.Value
		assert.Equal(t, "Hello\n\n"+update.Text+"\n\nAnd now?", content)
		assert.Contains(t, content, "</changed-artifact>\n\nAnd now?")
	})
}

func TestOpenAITranslator(t *testing.T) {
	chunks := []string{
		`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Let me "}}]}`,
		`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"check."}}]}`,
		`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"Calculator","arguments":""}}]}}]}`,
		`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"a\":10,\"b\":20}"}}]}}]}`,
		`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":7,"total_tokens":12}}`,
	}

	tr := newOpenAITranslator()
	var parts []stream.Part
	for _, raw := range chunks {
		var chunk openai.ChatCompletionChunk
		require.NoError(t, json.Unmarshal([]byte(raw), &chunk))
		parts = append(parts, tr.translate(chunk)...)
	}
	parts = append(parts, tr.flush()...)

	assert.Equal(t, stream.ResponseMetadata{Model: "gpt-4o"}, parts[0])
	assert.Equal(t, stream.TextStart{}, parts[1])

	var calls []stream.ToolCall
	var text string
	for _, p := range parts {
		switch v := p.(type) {
		case stream.ToolCall:
			calls = append(calls, v)
		case stream.TextDelta:
			text += v.Delta
		}
	}
	assert.Equal(t, "Let me check.", text)
	require.Len(t, calls, 1)
	assert.Equal(t, "call_1", calls[0].ID)
	assert.Equal(t, "Calculator", calls[0].Name)
	assert.JSONEq(t, `{"a":10,"b":20}`, string(calls[0].Input))

	assert.Equal(t, stream.Finish{
		Reason: "tool_calls",
		Usage:  message.Usage{InputTokens: 5, OutputTokens: 7, TotalTokens: 12},
	}, parts[len(parts)-1])
}
