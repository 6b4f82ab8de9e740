package prompt

import (
	"fmt"
	"strings"

	"github.com/harun/colloquy/pkg/message"
)

// MissingToolResult is reported to the model for tool calls that never got a result.
const MissingToolResult = "Tool result is missing from the conversation. This is likely a bug in the agent framework. Retry tool call; try calling tools one by one."

// PreprocessingError reports history that cannot be turned into a prompt context.
type PreprocessingError struct {
	MessageID string
	Reason    string
}

func (e *PreprocessingError) Error() string {
	if e.MessageID == "" {
		return "prompt preprocessing failed: " + e.Reason
	}
	return fmt.Sprintf("prompt preprocessing failed (message %s): %s", e.MessageID, e.Reason)
}

// Preprocess converts history into the context sent to the model:
//   - history starts at the last assistant message carrying a summary block;
//   - consecutive messages from the same role are merged;
//   - presentation blocks become tagged text, bookkeeping blocks are dropped;
//   - unanswered tool calls receive a synthetic failure result.
func Preprocess(history []message.Message) ([]message.Message, error) {
	trimmed, err := trimToSummary(history)
	if err != nil {
		return nil, err
	}

	var out []message.Message
	for _, msg := range group(trimmed) {
		blocks, err := convert(msg)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			continue
		}
		msg.Blocks = blocks
		out = append(out, msg)
	}
	return fixMissingToolResults(out), nil
}

func trimToSummary(history []message.Message) ([]message.Message, error) {
	last := -1
	for i := len(history) - 1; i >= 0 && last < 0; i-- {
		for _, b := range history[i].Blocks {
			if _, ok := b.(message.SummaryBlock); ok {
				last = i
				break
			}
		}
	}
	if last < 0 {
		return history, nil
	}

	summary := history[last]
	if summary.Role() != message.RoleAssistant {
		return nil, &PreprocessingError{
			MessageID: summary.ID,
			Reason:    fmt.Sprintf("summary blocks are only allowed in assistant messages, found in %q message", summary.Role()),
		}
	}

	var kept []message.Block
	for _, b := range summary.Blocks {
		if _, ok := b.(message.SummaryBlock); ok {
			kept = append(kept, b)
		}
	}
	summary.Blocks = kept

	out := make([]message.Message, 0, len(history)-last)
	out = append(out, summary)
	return append(out, history[last+1:]...), nil
}

func group(history []message.Message) []message.Message {
	var out []message.Message
	for _, msg := range history {
		if n := len(out); n > 0 && out[n-1].Role() == msg.Role() {
			merged := append([]message.Block(nil), out[n-1].Blocks...)
			out[n-1].Blocks = append(merged, msg.Blocks...)
			continue
		}
		msg.Blocks = append([]message.Block(nil), msg.Blocks...)
		out = append(out, msg)
	}
	return out
}

func convert(msg message.Message) ([]message.Block, error) {
	var out []message.Block
	for _, b := range msg.Blocks {
		converted, err := convertBlock(msg, b)
		if err != nil {
			return nil, err
		}
		if converted != nil {
			out = append(out, converted)
		}
	}
	return out, nil
}

func convertBlock(msg message.Message, b message.Block) (message.Block, error) {
	fail := func(reason string) (message.Block, error) {
		return nil, &PreprocessingError{MessageID: msg.ID, Reason: reason}
	}

	switch msg.Role() {
	case message.RoleUser:
		switch v := b.(type) {
		case message.TextBlock:
			return nonEmptyText(v.Text), nil
		case message.AnchorBlock:
			return nil, nil
		case message.ToolResultBlock:
			return fail(`tool results are not supported inside user messages, use the "tool" role instead`)
		default:
			return fail(fmt.Sprintf("invalid user content block: %s", b.Kind()))
		}

	case message.RoleAssistant:
		switch v := b.(type) {
		case message.TextBlock:
			return nonEmptyText(v.Text), nil
		case message.ReasoningBlock:
			v.Pending = false
			return v, nil
		case message.ToolUseBlock:
			return v, nil
		case message.StatusBlock:
			return tagged("status", v.Text), nil
		case message.SuggestionBlock:
			return tagged("suggestion", v.Text), nil
		case message.ProposalBlock:
			return tagged("proposal", v.Text), nil
		case message.SummaryBlock:
			return tagged("summary", v.Text), nil
		case message.SelectBlock:
			var sb strings.Builder
			for _, opt := range v.Options {
				sb.WriteString("<option>" + opt + "</option>")
			}
			return tagged("select", sb.String()), nil
		case message.ToolkitBlock:
			return message.TextBlock{Text: "<toolkit/>"}, nil
		case message.AnchorBlock, message.StatsBlock:
			return nil, nil
		default:
			return fail(fmt.Sprintf("invalid assistant content block: %s", b.Kind()))
		}

	case message.RoleTool:
		if v, ok := b.(message.ToolResultBlock); ok {
			return v, nil
		}
		return fail(fmt.Sprintf("invalid tool content block: %s", b.Kind()))

	default:
		return fail(fmt.Sprintf("unknown role %q", msg.Role()))
	}
}

func nonEmptyText(text string) message.Block {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return message.TextBlock{Text: text}
}

func tagged(tag, body string) message.Block {
	return message.TextBlock{Text: "<" + tag + ">" + body + "</" + tag + ">"}
}

func fixMissingToolResults(msgs []message.Message) []message.Message {
	var out []message.Message
	for i := 0; i < len(msgs); i++ {
		msg := msgs[i]
		out = append(out, msg)

		calls := msg.ToolCalls()
		if msg.Role() != message.RoleAssistant || len(calls) == 0 {
			continue
		}

		var toolMsg message.Message
		hasNext := i+1 < len(msgs) && msgs[i+1].Role() == message.RoleTool
		if hasNext {
			toolMsg = msgs[i+1]
			i++
		} else {
			toolMsg = message.New(message.RoleTool)
		}

		answered := make(map[string]bool)
		for _, res := range toolMsg.ToolResults() {
			answered[res.ToolCallID] = true
		}
		blocks := append([]message.Block(nil), toolMsg.Blocks...)
		for _, call := range calls {
			if answered[call.ToolCallID] {
				continue
			}
			blocks = append(blocks, message.ToolResultBlock{
				ToolCallID: call.ToolCallID,
				Name:       call.Name,
				Error:      MissingToolResult,
			})
		}
		toolMsg.Blocks = blocks
		out = append(out, toolMsg)
	}
	return out
}
