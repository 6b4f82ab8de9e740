// Package store keeps artifacts and blueprint sources in SQLite.
//
// Every artifact write that changes content bumps the version and keeps the
// previous content as a revision, so the store can report a unified diff
// between the version a conversation last anchored and the current one.
//
// Invariants:
//   - Versions are "v1", "v2", ... and only move when content changes.
//   - Resolve returns an entry for every requested id or an error.
//
// Usage:
//
//	st, err := store.Open(store.Config{Path: "colloquy.db"})
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//	a, err := st.PutArtifact(ctx, "", "note", "hello")
package store
