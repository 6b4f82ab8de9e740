package transcript

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/harun/colloquy/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, string) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	return s, dir
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		shouldErr bool
	}{
		{"valid key", "test-session", false},
		{"empty key", "", true},
		{"path traversal", "../etc/passwd", true},
		{"forward slash", "test/session", true},
		{"backslash", "test\\session", true},
		{"null byte", "test\x00session", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateKey(tt.key)
			if tt.shouldErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStore_AppendLoad(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	user := message.New(message.RoleUser, message.TextBlock{Text: "What is 10 + 20?"})
	assistant := message.New(message.RoleAssistant,
		message.ToolUseBlock{ToolCallID: "call-1", Name: "Calculator", Input: json.RawMessage(`{"a":10,"b":20}`)})
	tool := message.New(message.RoleTool, message.ToolResultBlock{ToolCallID: "call-1", Output: "30"})

	require.NoError(t, s.Append(ctx, "chat", user))
	require.NoError(t, s.Append(ctx, "chat", assistant, tool))

	msgs, err := s.Load(ctx, "chat")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, message.RoleTool, msgs[2].Role())
	assert.Equal(t, assistant.ToolCalls(), msgs[1].ToolCalls())
	assert.True(t, msgs[0].Created.Equal(user.Created))
}

func TestStore_LoadMissing(t *testing.T) {
	s, _ := setupTestStore(t)

	msgs, err := s.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStore_AppendRejectsInvalidKey(t *testing.T) {
	s, _ := setupTestStore(t)

	err := s.Append(context.Background(), "../escape", message.New(message.RoleUser, message.TextBlock{Text: "x"}))
	assert.Error(t, err)
}

func TestStore_CorruptLines(t *testing.T) {
	ctx := context.Background()
	s, dir := setupTestStore(t)

	require.NoError(t, s.Append(ctx, "chat", message.New(message.RoleUser, message.TextBlock{Text: "hello"})))

	f, err := os.OpenFile(filepath.Join(dir, "chat.jsonl"), os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.Append(ctx, "chat", message.New(message.RoleAssistant, message.TextBlock{Text: "hi"})))

	t.Run("should skip corrupt lines on load", func(t *testing.T) {
		msgs, err := s.Load(ctx, "chat")
		require.NoError(t, err)
		assert.Len(t, msgs, 2)
	})

	t.Run("should drop corrupt lines on repair", func(t *testing.T) {
		require.NoError(t, s.Repair(ctx, "chat"))

		data, err := os.ReadFile(filepath.Join(dir, "chat.jsonl"))
		require.NoError(t, err)
		assert.NotContains(t, string(data), "{not json")

		msgs, err := s.Load(ctx, "chat")
		require.NoError(t, err)
		assert.Len(t, msgs, 2)
	})
}

func TestStore_ConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Append(ctx, "chat", message.New(message.RoleUser, message.TextBlock{Text: "hello"})))
		}()
	}
	wg.Wait()

	msgs, err := s.Load(ctx, "chat")
	require.NoError(t, err)
	assert.Len(t, msgs, 20)
}

func TestStore_ListInfoDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := setupTestStore(t)

	for _, key := range []string{"b", "a"} {
		require.NoError(t, s.Append(ctx, key, message.New(message.RoleUser, message.TextBlock{Text: key})))
	}

	keys, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	info, err := s.Info(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, info.MessageCount)
	assert.Positive(t, info.Size)

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))
	keys, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, keys)

	_, err = s.Info(ctx, "a")
	assert.Error(t, err)
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	s, dir := setupTestStore(t)

	require.NoError(t, s.Append(ctx, "old", message.New(message.RoleUser, message.TextBlock{Text: "old"})))
	require.NoError(t, s.Append(ctx, "fresh", message.New(message.RoleUser, message.TextBlock{Text: "fresh"})))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.jsonl"), past, past))

	pruned, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, pruned)

	keys, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, keys)
}
