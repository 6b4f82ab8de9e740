package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/toolkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(t *testing.T, name string, input map[string]interface{}) message.ToolUseBlock {
	t.Helper()
	raw, err := json.Marshal(input)
	require.NoError(t, err)
	return message.ToolUseBlock{ToolCallID: "call-" + name, Name: name, Input: raw}
}

func TestStore_Toolkit(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	tk, err := st.Toolkit()
	require.NoError(t, err)
	assert.Equal(t, []string{ToolReadArtifact, ToolWriteArtifact, ToolListArtifacts}, tk.Names())

	exec := toolkit.NewExecutor(toolkit.ExecutorConfig{})

	t.Run("should write and bump versions", func(t *testing.T) {
		res, err := exec.Execute(ctx, call(t, ToolWriteArtifact, map[string]interface{}{"id": "plan", "content": "a"}), tk)
		require.NoError(t, err)
		assert.Equal(t, "plan is at v1", res.Output)

		res, err = exec.Execute(ctx, call(t, ToolWriteArtifact, map[string]interface{}{"id": "plan", "content": "b"}), tk)
		require.NoError(t, err)
		assert.Equal(t, "plan is at v2", res.Output)
	})

	t.Run("should read the current content", func(t *testing.T) {
		res, err := exec.Execute(ctx, call(t, ToolReadArtifact, map[string]interface{}{"id": "plan"}), tk)
		require.NoError(t, err)
		assert.False(t, res.Failed())
		assert.Contains(t, res.Output, `"content":"b"`)
		assert.Contains(t, res.Output, `"version":"v2"`)
	})

	t.Run("should report unknown artifacts as tool errors", func(t *testing.T) {
		res, err := exec.Execute(ctx, call(t, ToolReadArtifact, map[string]interface{}{"id": "ghost"}), tk)
		require.NoError(t, err)
		assert.True(t, res.Failed())
		assert.Contains(t, res.Error, "artifact not found")
	})

	t.Run("should list artifacts", func(t *testing.T) {
		res, err := exec.Execute(ctx, call(t, ToolListArtifacts, map[string]interface{}{}), tk)
		require.NoError(t, err)
		assert.Contains(t, res.Output, `"id":"plan"`)
	})
}
