package session

import (
	"context"

	"github.com/harun/colloquy/internal/tracing"
	"github.com/harun/colloquy/pkg/message"
	"github.com/harun/colloquy/pkg/stream"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "colloquy.session"

// Observer receives run progress. All hooks are optional. Stream hooks fire
// once per model turn.
type Observer struct {
	OnBegin   func()
	OnPart    func(stream.Part)
	OnBlock   func(message.Block)
	OnEnd     func(message.StatsBlock)
	OnMessage func(message.Message)
}

func (o Observer) hooks() stream.Hooks {
	return stream.Hooks{
		OnBegin: o.OnBegin,
		OnPart:  o.OnPart,
		OnBlock: o.OnBlock,
		OnEnd:   o.OnEnd,
	}
}

// ToolCallEnd finishes the trace of one tool call.
type ToolCallEnd func(result message.ToolResultBlock, err error)

// Tracer is the tracing sink of a session.
type Tracer interface {
	MessageSubmitted(ctx context.Context, msg message.Message)
	StartToolCall(ctx context.Context, messageID string, call message.ToolUseBlock) (context.Context, ToolCallEnd)
}

// OTelTracer records messages as span events on the run span and tool calls
// as child spans.
type OTelTracer struct{}

func (OTelTracer) MessageSubmitted(ctx context.Context, msg message.Message) {
	trace.SpanFromContext(ctx).AddEvent("message",
		trace.WithAttributes(
			attribute.String("message.id", msg.ID),
			attribute.String("message.role", string(msg.Role())),
			attribute.Int("message.blocks", len(msg.Blocks)),
		),
	)
}

func (OTelTracer) StartToolCall(ctx context.Context, messageID string, call message.ToolUseBlock) (context.Context, ToolCallEnd) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "session.tool_call",
		attribute.String("message.id", messageID),
		attribute.String("tool_call.id", call.ToolCallID),
		attribute.String("tool.name", call.Name),
	)
	return ctx, func(result message.ToolResultBlock, err error) {
		defer span.End()
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case result.Failed():
			span.SetStatus(codes.Error, result.Error)
		}
	}
}

// safeTracer keeps tracer panics away from the run.
type safeTracer struct {
	inner  Tracer
	logger zerolog.Logger
}

func (t safeTracer) recover(op string) {
	if r := recover(); r != nil {
		t.logger.Error().Interface("panic", r).Str("op", op).Msg("Tracer panicked")
	}
}

func (t safeTracer) MessageSubmitted(ctx context.Context, msg message.Message) {
	defer t.recover("message_submitted")
	t.inner.MessageSubmitted(ctx, msg)
}

func (t safeTracer) StartToolCall(ctx context.Context, messageID string, call message.ToolUseBlock) (outCtx context.Context, end ToolCallEnd) {
	outCtx, end = ctx, func(message.ToolResultBlock, error) {}
	defer t.recover("start_tool_call")

	spanCtx, inner := t.inner.StartToolCall(ctx, messageID, call)
	if spanCtx != nil {
		outCtx = spanCtx
	}
	if inner != nil {
		end = func(result message.ToolResultBlock, err error) {
			defer t.recover("end_tool_call")
			inner(result, err)
		}
	}
	return outCtx, end
}
