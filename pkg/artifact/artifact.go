package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harun/colloquy/pkg/message"
)

// UpdateHeader introduces the artifact-update text block.
const UpdateHeader = "The following artifacts have been updated since the last message:"

// Ref is an artifact id with the version last shown to the model.
type Ref struct {
	ID          string                `json:"id"`
	LastVersion message.ObjectVersion `json:"lastVersion"`
}

// Entry is the current state of an artifact as reported by a Resolver.
type Entry struct {
	Version message.ObjectVersion `json:"version"`
	Diff    string                `json:"diff,omitempty"`
}

// Change is an artifact whose version moved since it was last anchored.
type Change struct {
	ID      string
	Version message.ObjectVersion
	Diff    string
}

// Resolver reports the current version and an optional diff for each ref.
type Resolver interface {
	Resolve(ctx context.Context, refs []Ref) (map[string]Entry, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, refs []Ref) (map[string]Entry, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, refs []Ref) (map[string]Entry, error) {
	return f(ctx, refs)
}

// ErrMissingEntry is wrapped when a resolver omits a requested id.
var ErrMissingEntry = errors.New("resolver returned no entry")

// ResolutionError wraps any failure of the artifact diff resolver.
type ResolutionError struct {
	IDs []string
	Err error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("artifact diff resolution failed for %s: %v", strings.Join(e.IDs, ", "), e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// GatherVersions scans history for anchor blocks. Refs are returned in order of
// first appearance; each carries the version of the last anchor for its id.
func GatherVersions(history []message.Message) []Ref {
	var refs []Ref
	index := make(map[string]int)
	for _, msg := range history {
		for _, b := range msg.Blocks {
			anchor, ok := b.(message.AnchorBlock)
			if !ok || anchor.ObjectID == "" {
				continue
			}
			if i, seen := index[anchor.ObjectID]; seen {
				refs[i].LastVersion = anchor.Version
				continue
			}
			index[anchor.ObjectID] = len(refs)
			refs = append(refs, Ref{ID: anchor.ObjectID, LastVersion: anchor.Version})
		}
	}
	return refs
}

// Changes asks the resolver about refs and keeps the ones whose version differs
// from the last known one. A nil resolver or empty refs yields no changes.
func Changes(ctx context.Context, resolver Resolver, refs []Ref) ([]Change, error) {
	if resolver == nil || len(refs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}

	resolved, err := resolver.Resolve(ctx, refs)
	if err != nil {
		return nil, &ResolutionError{IDs: ids, Err: err}
	}

	var changes []Change
	for _, ref := range refs {
		entry, ok := resolved[ref.ID]
		if !ok {
			return nil, &ResolutionError{IDs: []string{ref.ID}, Err: ErrMissingEntry}
		}
		if entry.Version.Equal(ref.LastVersion) {
			continue
		}
		changes = append(changes, Change{ID: ref.ID, Version: entry.Version, Diff: entry.Diff})
	}
	return changes, nil
}

// Prelude renders changes as anchor blocks followed by a single artifact-update
// text block. It returns nil when nothing changed.
func Prelude(changes []Change) []message.Block {
	if len(changes) == 0 {
		return nil
	}
	blocks := make([]message.Block, 0, len(changes)+1)
	for _, c := range changes {
		blocks = append(blocks, message.AnchorBlock{ObjectID: c.ID, Version: c.Version})
	}
	return append(blocks, UpdateBlock(changes))
}

// UpdateBlock lists every change with its diff in a per-artifact tag.
func UpdateBlock(changes []Change) message.TextBlock {
	var sb strings.Builder
	sb.WriteString(UpdateHeader)
	for _, c := range changes {
		sb.WriteString("\n<changed-artifact id=\"")
		sb.WriteString(c.ID)
		sb.WriteString("\">")
		if c.Diff != "" {
			sb.WriteString("\n")
			sb.WriteString(strings.TrimRight(c.Diff, "\n"))
			sb.WriteString("\n")
		}
		sb.WriteString("</changed-artifact>")
	}
	return message.TextBlock{Text: sb.String(), Disposition: message.DispositionArtifactUpdate}
}
