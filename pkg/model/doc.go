// Package model adapts language model providers to the streaming part protocol.
//
// A Service opens one streamed response per Request and returns it as a
// stream.Source. Tool calls are reported as parts; executing them is left to
// the caller.
//
// Invariants:
// - Parts are yielded in provider order.
// - Tool call arguments are complete JSON by the time a ToolCall part is yielded.
// - Every successful stream ends with a Finish part.
//
// Usage:
//
//	svc, err := model.NewService(model.Config{Provider: "anthropic", APIKey: key})
//	src, err := svc.Stream(ctx, model.Request{Model: "claude-sonnet-4-5", Messages: msgs})
package model
