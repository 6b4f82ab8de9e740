package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/colloquy/pkg/artifact"
	"github.com/harun/colloquy/pkg/blueprint"
	"github.com/harun/colloquy/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestStore_PutArtifact(t *testing.T) {
	ctx := context.Background()

	t.Run("should allocate an id and start at v1", func(t *testing.T) {
		st := setupTestStore(t)
		a, err := st.PutArtifact(ctx, "", "note", "hello")
		require.NoError(t, err)
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, message.ObjectVersion("v1"), a.Version)
	})

	t.Run("should bump the version only when content changes", func(t *testing.T) {
		st := setupTestStore(t)
		_, err := st.PutArtifact(ctx, "doc", "note", "one")
		require.NoError(t, err)

		same, err := st.PutArtifact(ctx, "doc", "", "one")
		require.NoError(t, err)
		assert.Equal(t, message.ObjectVersion("v1"), same.Version)
		assert.Equal(t, "note", same.Kind)

		next, err := st.PutArtifact(ctx, "doc", "", "two")
		require.NoError(t, err)
		assert.Equal(t, message.ObjectVersion("v2"), next.Version)

		got, err := st.GetArtifact(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, "two", got.Content)
		assert.Equal(t, "note", got.Kind)

		old, err := st.Revision(ctx, "doc", "v1")
		require.NoError(t, err)
		assert.Equal(t, "one", old)
	})

	t.Run("should report missing artifacts", func(t *testing.T) {
		st := setupTestStore(t)
		_, err := st.GetArtifact(ctx, "nope")
		assert.ErrorIs(t, err, ErrArtifactNotFound)
	})
}

func TestStore_ListArtifacts(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)
	for _, id := range []string{"b", "a"} {
		_, err := st.PutArtifact(ctx, id, "note", id)
		require.NoError(t, err)
	}

	list, err := st.ListArtifacts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestStore_Resolve(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)

	_, err := st.PutArtifact(ctx, "doc", "note", "line one\nline two\n")
	require.NoError(t, err)
	_, err = st.PutArtifact(ctx, "doc", "", "line one\nline 2\n")
	require.NoError(t, err)
	_, err = st.PutArtifact(ctx, "fixed", "note", "static\n")
	require.NoError(t, err)

	t.Run("should diff from the last seen revision", func(t *testing.T) {
		entries, err := st.Resolve(ctx, []artifact.Ref{
			{ID: "doc", LastVersion: "v1"},
			{ID: "fixed", LastVersion: "v1"},
		})
		require.NoError(t, err)
		require.Len(t, entries, 2)

		doc := entries["doc"]
		assert.Equal(t, message.ObjectVersion("v2"), doc.Version)
		assert.Contains(t, doc.Diff, "-line two")
		assert.Contains(t, doc.Diff, "+line 2")
		assert.Contains(t, doc.Diff, "doc@v1")

		assert.Empty(t, entries["fixed"].Diff)
	})

	t.Run("should diff from empty content for an unknown version", func(t *testing.T) {
		entries, err := st.Resolve(ctx, []artifact.Ref{{ID: "doc", LastVersion: "draft"}})
		require.NoError(t, err)
		assert.Contains(t, entries["doc"].Diff, "+line 2")
	})

	t.Run("should fail for unknown ids", func(t *testing.T) {
		_, err := st.Resolve(ctx, []artifact.Ref{{ID: "missing", LastVersion: "v1"}})
		assert.ErrorIs(t, err, ErrArtifactNotFound)
	})

	t.Run("should feed artifact changes", func(t *testing.T) {
		history := []message.Message{
			message.New(message.RoleUser, message.AnchorBlock{ObjectID: "doc", Version: "v1"}),
		}
		changes, err := artifact.Changes(ctx, st, artifact.GatherVersions(history))
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.True(t, strings.HasPrefix(changes[0].Diff, "--- doc@v1"))
	})
}

func TestStore_Sources(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)

	_, err := st.LoadSource(ctx, "writer.md")
	assert.ErrorIs(t, err, blueprint.ErrSourceNotFound)

	require.NoError(t, st.PutSource(ctx, "writer.md", "Write like {{.who}}."))
	require.NoError(t, st.PutSource(ctx, "writer.md", "Write for {{.who}}."))
	assert.Error(t, st.PutSource(ctx, "", "x"))

	loader := blueprint.NewLoader(st, blueprint.WithVariables(map[string]interface{}{"who": "engineers"}))
	text, err := loader.Render(ctx, blueprint.Blueprint{
		Key:  "writer",
		Name: "Writer",
		Instructions: blueprint.Template{
			Source: "writer.md",
			Inputs: []blueprint.Input{{Name: "who", Kind: blueprint.InputPassThrough}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Write for engineers.", text)
}
