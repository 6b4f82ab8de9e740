package tracing

import (
	"context"
	"testing"
)

func TestNewTraceID(t *testing.T) {
	id1 := NewTraceID()
	id2 := NewTraceID()

	if id1 == "" {
		t.Error("NewTraceID returned empty string")
	}
	if id1 == id2 {
		t.Error("NewTraceID returned duplicate IDs")
	}
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	ctx = WithTraceID(ctx, "trace")
	ctx = WithRunID(ctx, "run")
	ctx = WithSessionID(ctx, "session")
	ctx = ToolCallContext(ctx, "msg", "call")

	tc := FromContext(ctx)
	want := TraceContext{TraceID: "trace", RunID: "run", SessionID: "session", MessageID: "msg", ToolCallID: "call"}
	if *tc != want {
		t.Errorf("Expected %+v, got %+v", want, *tc)
	}
}

func TestGetFromEmptyContext(t *testing.T) {
	tc := FromContext(context.Background())
	if *tc != (TraceContext{}) {
		t.Errorf("Expected empty trace context, got %+v", *tc)
	}
}

func TestNewRunContext(t *testing.T) {
	ctx := NewRunContext(context.Background(), "session-1")
	if GetTraceID(ctx) == "" || GetRunID(ctx) == "" {
		t.Fatal("Expected trace and run IDs to be generated")
	}
	if GetSessionID(ctx) != "session-1" {
		t.Errorf("Expected session-1, got %s", GetSessionID(ctx))
	}

	next := NewRunContext(ctx, "session-1")
	if GetTraceID(next) != GetTraceID(ctx) {
		t.Error("Trace ID should be kept across runs in the same context")
	}
	if GetRunID(next) == GetRunID(ctx) {
		t.Error("Each run should get a new run ID")
	}
}
