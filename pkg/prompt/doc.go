// Package prompt assembles what the model sees on each turn.
//
// FormatSystemPrompt composes the static instructions with rendered blueprints
// and context-object descriptors. FormatUserPrompt prefixes the user's text with
// an artifact freshness prelude. Preprocess turns conversation history into the
// normalized prompt context handed to a model service.
//
// Invariants:
// - FormatSystemPrompt with no blueprints and no objects returns the trimmed system text.
// - The user prompt text block is always the last block of the user message.
// - Preprocessed context contains only text, reasoning, tool_use and tool_result blocks.
package prompt
