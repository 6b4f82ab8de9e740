package stream

import (
	"iter"
	"strings"
	"time"

	"github.com/harun/colloquy/pkg/message"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Hooks observe a response as it streams. All hooks are optional.
type Hooks struct {
	OnBegin func()
	OnPart  func(Part)
	OnBlock func(message.Block)
	OnEnd   func(message.StatsBlock)
}

// Consumer converts parts into blocks.
type Consumer struct {
	hooks  Hooks
	logger zerolog.Logger
}

// NewConsumer creates a consumer reporting to hooks.
func NewConsumer(hooks Hooks, logger ...zerolog.Logger) *Consumer {
	l := log.Logger
	if len(logger) > 0 {
		l = logger[0]
	}
	return &Consumer{hooks: hooks, logger: l}
}

// Blocks yields every block emission, pending and final, in order. A source
// failure is yielded as the last element. The source is closed when iteration ends.
func (c *Consumer) Blocks(src Source) iter.Seq2[message.Block, error] {
	return func(yield func(message.Block, error) bool) {
		defer src.Close()

		st := &state{started: time.Now()}
		if c.hooks.OnBegin != nil {
			c.hooks.OnBegin()
		}

		emit := func(blocks []message.Block) bool {
			for _, b := range blocks {
				if c.hooks.OnBlock != nil {
					c.hooks.OnBlock(b)
				}
				if !yield(b, nil) {
					return false
				}
			}
			return true
		}

		for src.Next() {
			part := src.Current()
			if c.hooks.OnPart != nil {
				c.hooks.OnPart(part)
			}
			if !emit(c.handle(st, part)) {
				return
			}
		}
		if err := src.Err(); err != nil {
			yield(nil, err)
			return
		}

		final := append(st.text.flush(), st.flushReasoning()...)
		stats := st.stats()
		if !emit(append(final, stats)) {
			return
		}
		if c.hooks.OnEnd != nil {
			c.hooks.OnEnd(stats)
		}
	}
}

// Collect drains src and returns the final emission of every block in order.
func (c *Consumer) Collect(src Source) ([]message.Block, error) {
	var blocks []message.Block
	for b, err := range c.Blocks(src) {
		if err != nil {
			return blocks, err
		}
		if !message.IsPending(b) {
			blocks = append(blocks, b)
		}
	}
	return blocks, nil
}

type state struct {
	started time.Time

	text textParser

	reasoning       strings.Builder
	reasoningActive bool

	model        string
	finishReason string
	usage        message.Usage
	toolCalls    int
}

func (c *Consumer) handle(st *state, part Part) []message.Block {
	switch p := part.(type) {
	case TextStart:
		return st.flushReasoning()
	case TextDelta:
		out := st.flushReasoning()
		return append(out, st.text.write(p.Delta)...)
	case TextEnd:
		return st.text.flush()
	case ReasoningStart:
		out := st.text.flush()
		st.reasoningActive = true
		return out
	case ReasoningDelta:
		out := st.text.flush()
		st.reasoningActive = true
		st.reasoning.WriteString(p.Delta)
		return append(out, message.ReasoningBlock{Text: st.reasoning.String(), Pending: true})
	case ReasoningEnd:
		out := st.text.flush()
		if !st.reasoningActive {
			return out
		}
		b := message.ReasoningBlock{Text: st.reasoning.String(), Signature: p.Signature}
		st.reasoning.Reset()
		st.reasoningActive = false
		return append(out, b)
	case ToolCall:
		out := append(st.text.flush(), st.flushReasoning()...)
		id := p.ID
		if id == "" {
			id = gonanoid.Must()
			c.logger.Debug().Str("tool", p.Name).Str("tool_call_id", id).Msg("Assigned id to tool call")
		}
		st.toolCalls++
		return append(out, message.ToolUseBlock{ToolCallID: id, Name: p.Name, Input: p.Input})
	case ResponseMetadata:
		if p.Model != "" {
			st.model = p.Model
		}
	case Finish:
		st.finishReason = p.Reason
		st.usage = p.Usage
		if st.usage.TotalTokens == 0 {
			st.usage.TotalTokens = st.usage.InputTokens + st.usage.OutputTokens
		}
	case Raw:
		c.logger.Debug().Str("event", p.Event).Msg("Ignoring unmapped stream part")
	}
	return nil
}

func (st *state) flushReasoning() []message.Block {
	if !st.reasoningActive {
		return nil
	}
	b := message.ReasoningBlock{Text: st.reasoning.String()}
	st.reasoning.Reset()
	st.reasoningActive = false
	return []message.Block{b}
}

func (st *state) stats() message.StatsBlock {
	return message.StatsBlock{
		Model:        st.model,
		FinishReason: st.finishReason,
		Usage:        st.usage,
		ToolCalls:    st.toolCalls,
		Duration:     time.Since(st.started),
	}
}
