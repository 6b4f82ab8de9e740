package model

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/stream"
	"github.com/harun/colloquy/pkg/toolkit"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI streams responses from the Chat Completions API.
type OpenAI struct {
	client openai.Client
}

// NewOpenAI creates an OpenAI service
func NewOpenAI(cfg Config) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{client: openai.NewClient(opts...)}
}

func (o *OpenAI) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAI) Stream(ctx context.Context, req Request) (stream.Source, error) {
	events := o.client.Chat.Completions.NewStreaming(ctx, openaiParams(req))
	tr := newOpenAITranslator()
	return newPartSource(events, tr.translate, tr.flush), nil
}

func openaiParams(req Request) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: openaiMessages(req.System, req.Messages),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		params.Tools = openaiTools(req.Tools)
	}
	return params
}

func openaiMessages(system string, msgs []message.Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}

	for _, msg := range msgs {
		switch msg.Role() {
		case message.RoleUser:
			if text := joinText(msg); text != "" {
				out = append(out, openai.UserMessage(text))
			}
		case message.RoleAssistant:
			calls := msg.ToolCalls()
			if len(calls) == 0 {
				out = append(out, openai.AssistantMessage(joinText(msg)))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(calls))
			for _, call := range calls {
				args := string(call.Input)
				if args == "" {
					args = "{}"
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   call.ToolCallID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      call.Name,
						Arguments: args,
					},
				})
			}
			assistant := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   joinText(msg),
				ToolCalls: toolCalls,
			}
			out = append(out, assistant.ToParam())
		case message.RoleTool:
			for _, res := range msg.ToolResults() {
				out = append(out, openai.ToolMessage(resultText(res), res.ToolCallID))
			}
		}
	}
	return out
}

// joinText flattens the text blocks of msg into one content string. Blocks are
// separated by a blank line so grouped turns and the artifact update stay apart.
func joinText(msg message.Message) string {
	var texts []string
	for _, b := range msg.Blocks {
		if t, ok := b.(message.TextBlock); ok && t.Text != "" {
			texts = append(texts, t.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

func openaiTools(specs []toolkit.Spec) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  openai.FunctionParameters(spec.InputSchema),
			},
		})
	}
	return tools
}

type openaiTranslator struct {
	acc      openai.ChatCompletionAccumulator
	textOpen bool
	model    string
	reason   string
	usage    message.Usage
	emitted  map[int]bool
}

func newOpenAITranslator() *openaiTranslator {
	return &openaiTranslator{emitted: make(map[int]bool)}
}

func (t *openaiTranslator) translate(chunk openai.ChatCompletionChunk) []stream.Part {
	var parts []stream.Part
	t.acc.AddChunk(chunk)

	if t.model == "" && chunk.Model != "" {
		t.model = chunk.Model
		parts = append(parts, stream.ResponseMetadata{Model: chunk.Model})
	}
	if tool, ok := t.acc.JustFinishedToolCall(); ok {
		parts = append(parts, t.closeText()...)
		parts = append(parts, toolCallPart(tool.ID, tool.Name, tool.Arguments))
		t.emitted[tool.Index] = true
	}
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			if !t.textOpen {
				t.textOpen = true
				parts = append(parts, stream.TextStart{})
			}
			parts = append(parts, stream.TextDelta{Delta: choice.Delta.Content})
		}
		if choice.FinishReason != "" {
			t.reason = choice.FinishReason
		}
	}
	if chunk.Usage.TotalTokens > 0 {
		t.usage = message.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
			TotalTokens:  chunk.Usage.TotalTokens,
		}
	}
	return parts
}

func (t *openaiTranslator) flush() []stream.Part {
	parts := t.closeText()
	if len(t.acc.Choices) > 0 {
		for i, call := range t.acc.Choices[0].Message.ToolCalls {
			if t.emitted[i] {
				continue
			}
			parts = append(parts, toolCallPart(call.ID, call.Function.Name, call.Function.Arguments))
		}
	}
	return append(parts, stream.Finish{Reason: t.reason, Usage: t.usage})
}

func (t *openaiTranslator) closeText() []stream.Part {
	if !t.textOpen {
		return nil
	}
	t.textOpen = false
	return []stream.Part{stream.TextEnd{}}
}

func toolCallPart(id, name, args string) stream.ToolCall {
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	return stream.ToolCall{ID: id, Name: name, Input: json.RawMessage(args)}
}
