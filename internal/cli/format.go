package cli

import (
	"fmt"
	"strings"

	"github.com/harun/colloquy/pkg/message"
)

const summaryWidth = 120

// summarize renders a message on one line for transcript listings.
func summarize(msg message.Message) string {
	var parts []string
	for _, b := range msg.Blocks {
		switch v := b.(type) {
		case message.TextBlock:
			if v.Disposition == message.DispositionArtifactUpdate {
				parts = append(parts, "(artifacts updated)")
				continue
			}
			parts = append(parts, v.Text)
		case message.AnchorBlock:
			parts = append(parts, fmt.Sprintf("@%s:%s", v.ObjectID, v.Version))
		case message.ToolUseBlock:
			parts = append(parts, fmt.Sprintf("%s(%s)", v.Name, string(v.Input)))
		case message.ToolResultBlock:
			if v.Failed() {
				parts = append(parts, "error: "+v.Error)
			} else {
				parts = append(parts, v.Output)
			}
		case message.StatsBlock:
			parts = append(parts, fmt.Sprintf("<%d tokens, %s>", v.Usage.TotalTokens, v.Duration))
		default:
			parts = append(parts, "<"+string(b.Kind())+">")
		}
	}
	line := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	if len(line) > summaryWidth {
		line = line[:summaryWidth-3] + "..."
	}
	return line
}
