package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/harun/colloquy/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calculator() Tool {
	return Tool{
		Name:        "Calculator",
		Description: "Adds two numbers",
		Parameters: []Parameter{
			{Name: "a", Type: "number", Description: "first operand", Required: true},
			{Name: "b", Type: "number", Description: "second operand", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return params["a"].(float64) + params["b"].(float64), nil
		},
	}
}

func call(name, input string) message.ToolUseBlock {
	return message.ToolUseBlock{ToolCallID: "call-1", Name: name, Input: json.RawMessage(input)}
}

func TestToolkit_Register(t *testing.T) {
	t.Run("should keep registration order", func(t *testing.T) {
		echo := calculator()
		echo.Name = "Echo"
		tk, err := New(calculator(), echo)
		require.NoError(t, err)

		assert.Equal(t, []string{"Calculator", "Echo"}, tk.Names())
		assert.Equal(t, 2, tk.Len())

		specs := tk.Specs()
		require.Len(t, specs, 2)
		assert.Equal(t, "Calculator", specs[0].Name)
		assert.Equal(t, []string{"a", "b"}, specs[0].InputSchema["required"])
	})

	t.Run("should reject invalid definitions", func(t *testing.T) {
		noop := func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return nil, nil }
		tests := []struct {
			name string
			tool Tool
		}{
			{name: "empty name", tool: Tool{Description: "Test", Handler: noop}},
			{name: "empty description", tool: Tool{Name: "test", Handler: noop}},
			{name: "nil handler", tool: Tool{Name: "test", Description: "Test"}},
			{name: "bad parameter type", tool: Tool{Name: "test", Description: "Test", Handler: noop,
				Parameters: []Parameter{{Name: "x", Type: "date", Description: "d"}}}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := New(tt.tool)
				assert.Error(t, err)
			})
		}
	})

	t.Run("should use an explicit input schema", func(t *testing.T) {
		tool := calculator()
		tool.InputSchema = map[string]interface{}{"type": "object"}
		tk, err := New(tool)
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"type": "object"}, tk.Specs()[0].InputSchema)
	})
}

func TestToolkit_Merge(t *testing.T) {
	base, err := New(calculator())
	require.NoError(t, err)

	override := calculator()
	override.Description = "Overridden"
	other, err := New(override)
	require.NoError(t, err)

	merged, err := base.Merge(other)
	require.NoError(t, err)
	tool, ok := merged.Get("Calculator")
	require.True(t, ok)
	assert.Equal(t, "Overridden", tool.Description)
	assert.Equal(t, 1, base.Len())

	var nilKit *Toolkit
	merged, err = nilKit.Merge(base)
	require.NoError(t, err)
	assert.Equal(t, []string{"Calculator"}, merged.Names())
}

func TestPolicy_IsAllowed(t *testing.T) {
	tests := []struct {
		name   string
		policy *Policy
		tool   string
		want   bool
	}{
		{name: "nil policy", policy: nil, tool: "anything", want: true},
		{name: "empty allow", policy: &Policy{}, tool: "anything", want: true},
		{name: "explicit allow", policy: &Policy{Allow: []string{"Calculator"}}, tool: "Calculator", want: true},
		{name: "not in allow", policy: &Policy{Allow: []string{"Calculator"}}, tool: "Shell", want: false},
		{name: "glob allow", policy: &Policy{Allow: []string{"fs_*"}}, tool: "fs_read", want: true},
		{name: "deny wins", policy: &Policy{Allow: []string{"*"}, Deny: []string{"Shell"}}, tool: "Shell", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.IsAllowed(tt.tool))
		})
	}
}

func TestExecutor_Execute(t *testing.T) {
	ctx := context.Background()

	t.Run("should return the handler output", func(t *testing.T) {
		tk, err := New(calculator())
		require.NoError(t, err)

		result, err := NewExecutor(ExecutorConfig{}).Execute(ctx, call("Calculator", `{"a":10,"b":20}`), tk)
		require.NoError(t, err)
		assert.Equal(t, "call-1", result.ToolCallID)
		assert.Equal(t, "30", result.Output)
		assert.False(t, result.Failed())
	})

	t.Run("should return NotFoundError for unknown tools", func(t *testing.T) {
		tk, err := New(calculator())
		require.NoError(t, err)

		_, err = NewExecutor(ExecutorConfig{}).Execute(ctx, call("Missing", `{}`), tk)
		var notFound *NotFoundError
		require.ErrorAs(t, err, &notFound)
		assert.Equal(t, "Missing", notFound.Name)
	})

	t.Run("should report invalid parameters in the result", func(t *testing.T) {
		tk, err := New(calculator())
		require.NoError(t, err)

		result, err := NewExecutor(ExecutorConfig{}).Execute(ctx, call("Calculator", `{"a":"ten"}`), tk)
		require.NoError(t, err)
		assert.True(t, result.Failed())
		assert.Contains(t, result.Error, "parameter validation failed")
	})

	t.Run("should report handler errors in the result", func(t *testing.T) {
		tool := calculator()
		tool.Handler = func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return nil, errors.New("division by zero")
		}
		tk, err := New(tool)
		require.NoError(t, err)

		result, err := NewExecutor(ExecutorConfig{}).Execute(ctx, call("Calculator", `{"a":1,"b":0}`), tk)
		require.NoError(t, err)
		assert.Equal(t, "division by zero", result.Error)
	})

	t.Run("should time out slow handlers", func(t *testing.T) {
		tool := calculator()
		tool.Handler = func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		tk, err := New(tool)
		require.NoError(t, err)

		exec := NewExecutor(ExecutorConfig{Timeout: 20 * time.Millisecond})
		result, err := exec.Execute(ctx, call("Calculator", `{"a":1,"b":2}`), tk)
		require.NoError(t, err)
		assert.Contains(t, result.Error, "timeout")
	})

	t.Run("should deny tools outside the policy", func(t *testing.T) {
		tk, err := New(calculator())
		require.NoError(t, err)

		exec := NewExecutor(ExecutorConfig{Policy: &Policy{Deny: []string{"Calculator"}}})
		result, err := exec.Execute(ctx, call("Calculator", `{"a":1,"b":2}`), tk)
		require.NoError(t, err)
		assert.Contains(t, result.Error, "not allowed")
	})

	t.Run("should truncate large output", func(t *testing.T) {
		tool := calculator()
		tool.Parameters = nil
		tool.Handler = func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return strings.Repeat("x", 100), nil
		}
		tk, err := New(tool)
		require.NoError(t, err)

		exec := NewExecutor(ExecutorConfig{MaxOutputBytes: 10})
		result, err := exec.Execute(ctx, call("Calculator", ``), tk)
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("x", 10)+truncationMarker, result.Output)
	})

	t.Run("should truncate on a rune boundary", func(t *testing.T) {
		tool := calculator()
		tool.Parameters = nil
		tool.Handler = func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return "aé€" + strings.Repeat("x", 20), nil
		}
		tk, err := New(tool)
		require.NoError(t, err)

		// 5 bytes ends inside the three-byte euro sign.
		exec := NewExecutor(ExecutorConfig{MaxOutputBytes: 5})
		result, err := exec.Execute(ctx, call("Calculator", ``), tk)
		require.NoError(t, err)
		assert.Equal(t, "aé"+truncationMarker, result.Output)
		assert.True(t, utf8.ValidString(result.Output))
	})

	t.Run("should encode structured output as JSON", func(t *testing.T) {
		tool := calculator()
		tool.Parameters = nil
		tool.Handler = func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return map[string]int{"sum": 3}, nil
		}
		tk, err := New(tool)
		require.NoError(t, err)

		result, err := NewExecutor(ExecutorConfig{}).Execute(ctx, call("Calculator", `{}`), tk)
		require.NoError(t, err)
		assert.JSONEq(t, `{"sum":3}`, result.Output)
	})

	t.Run("should recover handler panics", func(t *testing.T) {
		tool := calculator()
		tool.Parameters = nil
		tool.Handler = func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			panic("boom")
		}
		tk, err := New(tool)
		require.NoError(t, err)

		result, err := NewExecutor(ExecutorConfig{}).Execute(ctx, call("Calculator", `{}`), tk)
		require.NoError(t, err)
		assert.Contains(t, result.Error, "boom")
	})
}
