// Package message defines conversation turns and the closed set of content blocks they carry.
//
// Invariants:
// - Block is a closed union; only types declared in this package implement it.
// - A block's pending flag is monotonic: once a logical block is final it is never re-emitted as pending.
// - ObjectVersion values are compared for equality only; equal versions imply unchanged content.
//
// Usage:
//
//	msg := message.New(message.RoleUser, message.TextBlock{Text: "Hello world!"})
//	for _, call := range msg.ToolCalls() {
//		_ = call.Name
//	}
package message
