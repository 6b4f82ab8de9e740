// Package blueprint models named instruction templates that contribute to the system prompt.
//
// A blueprint's instructions are either inline text or a reference to a source
// stored in a Database. The Loader resolves the source and renders it with
// text/template against the blueprint's declared inputs.
//
// Usage:
//
//	loader := blueprint.NewLoader(db, blueprint.WithFunction("today", todayFn))
//	text, err := loader.Render(ctx, bp)
package blueprint
