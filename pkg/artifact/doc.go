// Package artifact keeps the model's view of external mutable objects fresh across turns.
//
// Anchor blocks in history record the version of each artifact the model has seen.
// Before a new user prompt is sent, the last known version of every anchored artifact
// is checked against a Resolver; changed artifacts get a new anchor plus one
// artifact-update text block listing their diffs.
//
// Invariants:
// - The last anchor for an id in scan order wins.
// - A Resolver must answer for every requested id; omissions are resolution errors.
// - Resolution errors are never downgraded to "no change".
package artifact
