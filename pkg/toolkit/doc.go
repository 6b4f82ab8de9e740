// Package toolkit holds the tools a model may invoke during a run and executes tool calls.
//
// Invariants:
// - Tool parameters are validated against a JSON schema before the handler runs.
// - Handler failures, timeouts and policy denials become error results; they are not Go errors.
// - A call naming a tool absent from the toolkit returns *NotFoundError.
//
// Usage:
//
//	tk, _ := toolkit.New(toolkit.Tool{Name: "Calculator", ...})
//	exec := toolkit.NewExecutor(toolkit.ExecutorConfig{Timeout: 30 * time.Second})
//	result, err := exec.Execute(ctx, call, tk)
package toolkit
