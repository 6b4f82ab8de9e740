// Package session drives a multi-turn exchange between a user, a language
// model and a toolkit.
//
// A Session runs the tool-call loop: it submits the user prompt, streams a
// model response, executes any requested tool calls concurrently, feeds the
// results back and repeats until the model answers without tool calls.
//
// Invariants:
// - At most one Run executes per Session; concurrent callers wait their turn.
// - Every Run starts from the caller's history and an empty pending list.
// - Each loop iteration adds one assistant message and, when it requested tools,
//   exactly one tool message with one result per call in call order.
// - The first unrecovered error ends the Run; partial state is on *RunError.
// - Tracer failures never affect the conversation.
//
// Usage:
//
//	sess, _ := session.New(session.Config{Model: svc, ModelName: "claude-sonnet-4-5"})
//	pending, err := sess.Run(ctx, session.RunParams{Prompt: "What is 10 + 20?", Toolkit: tk})
package session
