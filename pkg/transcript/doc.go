// Package transcript persists conversations as JSONL files, one message per line.
//
// Callers own continuity between session runs: they append the messages a run
// returns and load them back as the next run's history.
//
// Invariants:
// - Transcript keys are validated and path-safe.
// - Writes for the same key are serialized; a batch is written with a single fsync.
// - Corrupt lines are skipped on load, never fatal.
//
// Usage:
//
//	store, _ := transcript.New("/tmp/colloquy/transcripts")
//	history, _ := store.Load(ctx, "default")
//	pending, _ := sess.Run(ctx, session.RunParams{Prompt: "hi", History: history})
//	_ = store.Append(ctx, "default", pending...)
package transcript
