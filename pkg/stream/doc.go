// Package stream turns raw model output parts into content blocks.
//
// A Consumer reads parts from a Source and emits blocks. Every logical block is
// emitted zero or more times with pending=true while it accumulates and exactly
// once with pending=false when it is complete. The last emission for a block is
// authoritative. Part order is preserved; nothing is buffered beyond the block
// being assembled.
//
// Text may carry inline tags (<cot>, <think>, <status>, <suggestion>, <proposal>,
// <select>/<option>, <toolkit/>) which become their own blocks. Unknown tags stay
// literal text.
//
// Usage:
//
//	c := stream.NewConsumer(stream.Hooks{OnBlock: render})
//	blocks, err := c.Collect(src)
package stream
