package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for one session run
	RunIDKey ContextKey = "run_id"
	// SessionIDKey is the context key for the owning session
	SessionIDKey ContextKey = "session_id"
	// MessageIDKey is the context key for the message being processed
	MessageIDKey ContextKey = "message_id"
	// ToolCallIDKey is the context key for a tool call
	ToolCallIDKey ContextKey = "tool_call_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID    string
	RunID      string
	SessionID  string
	MessageID  string
	ToolCallID string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

func WithToolCallID(ctx context.Context, toolCallID string) context.Context {
	return context.WithValue(ctx, ToolCallIDKey, toolCallID)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string    { return stringValue(ctx, TraceIDKey) }
func GetRunID(ctx context.Context) string      { return stringValue(ctx, RunIDKey) }
func GetSessionID(ctx context.Context) string  { return stringValue(ctx, SessionIDKey) }
func GetMessageID(ctx context.Context) string  { return stringValue(ctx, MessageIDKey) }
func GetToolCallID(ctx context.Context) string { return stringValue(ctx, ToolCallIDKey) }

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:    GetTraceID(ctx),
		RunID:      GetRunID(ctx),
		SessionID:  GetSessionID(ctx),
		MessageID:  GetMessageID(ctx),
		ToolCallID: GetToolCallID(ctx),
	}
}

// NewRunContext starts tracing for one session run. An existing trace ID is kept.
func NewRunContext(ctx context.Context, sessionID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithRunID(ctx, NewRunID())
	return WithSessionID(ctx, sessionID)
}

// ToolCallContext tags ctx with the assistant message and tool call being executed.
func ToolCallContext(ctx context.Context, messageID, toolCallID string) context.Context {
	return WithToolCallID(WithMessageID(ctx, messageID), toolCallID)
}
