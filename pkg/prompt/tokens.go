package prompt

import (
	"github.com/harun/colloquy/pkg/message"
)

const (
	messageDelimiterTokens = 4
	replyPrimingTokens     = 3
)

// EstimateTokens approximates the prompt size at four characters per token.
func EstimateTokens(system string, msgs []message.Message) int {
	total := replyPrimingTokens
	if system != "" {
		total += messageDelimiterTokens + estimateText(system)
	}
	for _, msg := range msgs {
		total += messageDelimiterTokens
		for _, b := range msg.Blocks {
			switch v := b.(type) {
			case message.TextBlock:
				total += estimateText(v.Text)
			case message.ReasoningBlock:
				total += estimateText(v.Text)
			case message.ToolUseBlock:
				total += estimateText(v.Name) + estimateText(string(v.Input))
			case message.ToolResultBlock:
				total += estimateText(v.Name) + estimateText(v.Output) + estimateText(v.Error)
			}
		}
	}
	return total
}

func estimateText(s string) int {
	return (len(s) + 3) / 4
}
