package artifact

import (
	"fmt"

	"github.com/harun/colloquy/pkg/message"
	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff renders the change between two revisions of an artifact.
func UnifiedDiff(id string, fromVersion message.ObjectVersion, from string, toVersion message.ObjectVersion, to string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: fmt.Sprintf("%s@%s", id, fromVersion),
		ToFile:   fmt.Sprintf("%s@%s", id, toVersion),
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff artifact %s: %w", id, err)
	}
	return text, nil
}
