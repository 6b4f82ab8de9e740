package store

import (
	"context"
	"fmt"

	"github.com/harun/colloquy/pkg/toolkit"
)

// Tool names registered by Toolkit.
const (
	ToolReadArtifact  = "read_artifact"
	ToolWriteArtifact = "write_artifact"
	ToolListArtifacts = "list_artifacts"
)

// Toolkit exposes the artifact store to the model. Writes through
// write_artifact bump versions like any other write, so the next prompt
// reports them as changed.
func (s *Store) Toolkit() (*toolkit.Toolkit, error) {
	return toolkit.New(
		toolkit.Tool{
			Name:        ToolReadArtifact,
			Description: "Read the current content and version of an artifact",
			Parameters: []toolkit.Parameter{
				{Name: "id", Type: "string", Description: "Artifact id", Required: true},
			},
			Handler: s.readArtifactTool,
		},
		toolkit.Tool{
			Name:        ToolWriteArtifact,
			Description: "Create or replace the content of an artifact",
			Parameters: []toolkit.Parameter{
				{Name: "id", Type: "string", Description: "Artifact id; omit to create a new artifact"},
				{Name: "kind", Type: "string", Description: "Artifact kind, e.g. note or code"},
				{Name: "content", Type: "string", Description: "Full new content", Required: true},
			},
			Handler: s.writeArtifactTool,
		},
		toolkit.Tool{
			Name:        ToolListArtifacts,
			Description: "List stored artifacts with their kinds and versions",
			Handler:     s.listArtifactsTool,
		},
	)
}

func (s *Store) readArtifactTool(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	id, _ := params["id"].(string)
	a, err := s.GetArtifact(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":      a.ID,
		"kind":    a.Kind,
		"version": string(a.Version),
		"content": a.Content,
	}, nil
}

func (s *Store) writeArtifactTool(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	id, _ := params["id"].(string)
	kind, _ := params["kind"].(string)
	content, _ := params["content"].(string)
	if id == "" && kind == "" {
		kind = "note"
	}
	a, err := s.PutArtifact(ctx, id, kind, content)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("%s is at %s", a.ID, a.Version), nil
}

func (s *Store) listArtifactsTool(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	list, err := s.ListArtifacts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]string, 0, len(list))
	for _, a := range list {
		out = append(out, map[string]string{"id": a.ID, "kind": a.Kind, "version": string(a.Version)})
	}
	return out, nil
}
