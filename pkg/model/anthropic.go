package model

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/stream"
	"github.com/harun/colloquy/pkg/toolkit"
)

// Anthropic streams responses from the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic creates an Anthropic service
func NewAnthropic(cfg Config) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{client: anthropic.NewClient(opts...)}
}

func (a *Anthropic) Provider() string {
	return ProviderAnthropic
}

func (a *Anthropic) Stream(ctx context.Context, req Request) (stream.Source, error) {
	events := a.client.Messages.NewStreaming(ctx, anthropicParams(req))
	tr := newAnthropicTranslator()
	return newPartSource(events, tr.translate, nil), nil
}

func anthropicParams(req Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  anthropicMessages(req.Messages),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropicTools(req.Tools)
	}
	return params
}

func anthropicMessages(msgs []message.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range msgs {
		var blocks []anthropic.ContentBlockParamUnion
		for _, b := range msg.Blocks {
			switch v := b.(type) {
			case message.TextBlock:
				blocks = append(blocks, anthropic.NewTextBlock(v.Text))
			case message.ReasoningBlock:
				// Thinking without a signature is rejected by the API.
				if v.Signature != "" {
					blocks = append(blocks, anthropic.NewThinkingBlock(v.Signature, v.Text))
				}
			case message.ToolUseBlock:
				input := json.RawMessage(v.Input)
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(v.ToolCallID, input, v.Name))
			case message.ToolResultBlock:
				blocks = append(blocks, anthropic.NewToolResultBlock(v.ToolCallID, resultText(v), v.Failed()))
			}
		}
		if len(blocks) == 0 {
			continue
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role() == message.RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		// Tool results travel as user content; merge them with a following user turn.
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			continue
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out
}

func anthropicTools(specs []toolkit.Spec) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		tool := anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: spec.InputSchema["properties"],
			},
		}
		switch required := spec.InputSchema["required"].(type) {
		case []string:
			tool.InputSchema.Required = required
		case []interface{}:
			for _, r := range required {
				if s, ok := r.(string); ok {
					tool.InputSchema.Required = append(tool.InputSchema.Required, s)
				}
			}
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return tools
}

type blockKind int

const (
	blockText blockKind = iota
	blockReasoning
	blockTool
)

type anthropicBlock struct {
	kind      blockKind
	id        string
	name      string
	signature string
	input     strings.Builder
}

type anthropicTranslator struct {
	blocks     map[int64]*anthropicBlock
	usage      message.Usage
	stopReason string
}

func newAnthropicTranslator() *anthropicTranslator {
	return &anthropicTranslator{blocks: make(map[int64]*anthropicBlock)}
}

func (t *anthropicTranslator) translate(event anthropic.MessageStreamEventUnion) []stream.Part {
	switch ev := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		t.usage.InputTokens = ev.Message.Usage.InputTokens
		return []stream.Part{stream.ResponseMetadata{Model: string(ev.Message.Model)}}

	case anthropic.ContentBlockStartEvent:
		switch cb := ev.ContentBlock.AsAny().(type) {
		case anthropic.TextBlock:
			t.blocks[ev.Index] = &anthropicBlock{kind: blockText}
			parts := []stream.Part{stream.TextStart{}}
			if cb.Text != "" {
				parts = append(parts, stream.TextDelta{Delta: cb.Text})
			}
			return parts
		case anthropic.ThinkingBlock:
			t.blocks[ev.Index] = &anthropicBlock{kind: blockReasoning, signature: cb.Signature}
			parts := []stream.Part{stream.ReasoningStart{}}
			if cb.Thinking != "" {
				parts = append(parts, stream.ReasoningDelta{Delta: cb.Thinking})
			}
			return parts
		case anthropic.ToolUseBlock:
			t.blocks[ev.Index] = &anthropicBlock{kind: blockTool, id: cb.ID, name: cb.Name}
			return nil
		}

	case anthropic.ContentBlockDeltaEvent:
		b := t.blocks[ev.Index]
		if b == nil {
			return nil
		}
		switch d := ev.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			return []stream.Part{stream.TextDelta{Delta: d.Text}}
		case anthropic.ThinkingDelta:
			return []stream.Part{stream.ReasoningDelta{Delta: d.Thinking}}
		case anthropic.SignatureDelta:
			b.signature += d.Signature
			return nil
		case anthropic.InputJSONDelta:
			b.input.WriteString(d.PartialJSON)
			return nil
		}

	case anthropic.ContentBlockStopEvent:
		b := t.blocks[ev.Index]
		if b == nil {
			return nil
		}
		delete(t.blocks, ev.Index)
		switch b.kind {
		case blockText:
			return []stream.Part{stream.TextEnd{}}
		case blockReasoning:
			return []stream.Part{stream.ReasoningEnd{Signature: b.signature}}
		case blockTool:
			input := b.input.String()
			if strings.TrimSpace(input) == "" {
				input = "{}"
			}
			return []stream.Part{stream.ToolCall{ID: b.id, Name: b.name, Input: json.RawMessage(input)}}
		}

	case anthropic.MessageDeltaEvent:
		t.usage.OutputTokens = ev.Usage.OutputTokens
		t.stopReason = string(ev.Delta.StopReason)
		return nil

	case anthropic.MessageStopEvent:
		t.usage.TotalTokens = t.usage.InputTokens + t.usage.OutputTokens
		return []stream.Part{stream.Finish{Reason: t.stopReason, Usage: t.usage}}
	}

	return []stream.Part{stream.Raw{Event: event.Type, Data: json.RawMessage(event.RawJSON())}}
}
