package artifact

import (
	"context"
	"errors"
	"testing"

	"github.com/harun/colloquy/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, refs []Ref) (map[string]Entry, error) {
	args := m.Called(ctx, refs)
	entries, _ := args.Get(0).(map[string]Entry)
	return entries, args.Error(1)
}

func anchoredHistory() []message.Message {
	return []message.Message{
		message.New(message.RoleUser,
			message.AnchorBlock{ObjectID: "doc", Version: "v1"},
			message.TextBlock{Text: "edit the doc"},
		),
		message.New(message.RoleAssistant, message.TextBlock{Text: "ok"}),
		message.New(message.RoleUser,
			message.AnchorBlock{ObjectID: "sheet", Version: "v7"},
			message.AnchorBlock{ObjectID: "doc", Version: "v2"},
		),
	}
}

func TestGatherVersions(t *testing.T) {
	refs := GatherVersions(anchoredHistory())

	require.Len(t, refs, 2)
	assert.Equal(t, Ref{ID: "doc", LastVersion: "v2"}, refs[0])
	assert.Equal(t, Ref{ID: "sheet", LastVersion: "v7"}, refs[1])

	assert.Empty(t, GatherVersions(nil))
}

func TestChanges(t *testing.T) {
	ctx := context.Background()
	refs := GatherVersions(anchoredHistory())

	t.Run("should report nothing when versions are unchanged", func(t *testing.T) {
		r := &mockResolver{}
		r.On("Resolve", ctx, refs).Return(map[string]Entry{
			"doc":   {Version: "v2"},
			"sheet": {Version: "v7"},
		}, nil)

		changes, err := Changes(ctx, r, refs)
		require.NoError(t, err)
		assert.Empty(t, changes)
		assert.Nil(t, Prelude(changes))
		r.AssertExpectations(t)
	})

	t.Run("should keep changed artifacts in ref order", func(t *testing.T) {
		r := ResolverFunc(func(ctx context.Context, refs []Ref) (map[string]Entry, error) {
			return map[string]Entry{
				"sheet": {Version: "v8", Diff: "+row"},
				"doc":   {Version: "v3", Diff: "-old\n+new"},
			}, nil
		})

		changes, err := Changes(ctx, r, refs)
		require.NoError(t, err)
		require.Len(t, changes, 2)
		assert.Equal(t, "doc", changes[0].ID)
		assert.Equal(t, message.ObjectVersion("v3"), changes[0].Version)
		assert.Equal(t, "sheet", changes[1].ID)
	})

	t.Run("should skip the resolver when nothing is anchored", func(t *testing.T) {
		r := &mockResolver{}
		changes, err := Changes(ctx, r, nil)
		require.NoError(t, err)
		assert.Nil(t, changes)
		r.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
	})

	t.Run("should treat a nil resolver as disabled", func(t *testing.T) {
		changes, err := Changes(ctx, nil, refs)
		require.NoError(t, err)
		assert.Nil(t, changes)
	})

	t.Run("should wrap resolver failures", func(t *testing.T) {
		boom := errors.New("graph offline")
		r := &mockResolver{}
		r.On("Resolve", ctx, refs).Return(nil, boom)

		_, err := Changes(ctx, r, refs)
		var resErr *ResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"doc", "sheet"}, resErr.IDs)
	})

	t.Run("should fail when an id is omitted", func(t *testing.T) {
		r := ResolverFunc(func(ctx context.Context, refs []Ref) (map[string]Entry, error) {
			return map[string]Entry{"doc": {Version: "v2"}}, nil
		})

		_, err := Changes(ctx, r, refs)
		assert.ErrorIs(t, err, ErrMissingEntry)
		assert.ErrorContains(t, err, "sheet")
	})
}

func TestPrelude(t *testing.T) {
	blocks := Prelude([]Change{
		{ID: "doc", Version: "v3", Diff: "-old\n+new\n"},
		{ID: "sheet", Version: "v8"},
	})

	require.Len(t, blocks, 3)
	assert.Equal(t, message.AnchorBlock{ObjectID: "doc", Version: "v3"}, blocks[0])
	assert.Equal(t, message.AnchorBlock{ObjectID: "sheet", Version: "v8"}, blocks[1])

	text, ok := blocks[2].(message.TextBlock)
	require.True(t, ok)
	assert.Equal(t, message.DispositionArtifactUpdate, text.Disposition)
	assert.Equal(t, UpdateHeader+
		"\n<changed-artifact id=\"doc\">\n-old\n+new\n</changed-artifact>"+
		"\n<changed-artifact id=\"sheet\"></changed-artifact>", text.Text)
}

func TestUnifiedDiff(t *testing.T) {
	diff, err := UnifiedDiff("doc", "v1", "alpha\nbeta\n", "v2", "alpha\ngamma\n")
	require.NoError(t, err)

	assert.Contains(t, diff, "--- doc@v1")
	assert.Contains(t, diff, "+++ doc@v2")
	assert.Contains(t, diff, "-beta")
	assert.Contains(t, diff, "+gamma")
}
