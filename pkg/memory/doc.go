// Package memory is a persistent knowledge store with hybrid retrieval.
//
// The keyword index uses SQLite FTS5, which go-sqlite3 only compiles in
// behind a build tag: build and test with -tags sqlite_fts5.
//
// Invariants:
// - Every entry has exactly one vector-index row and its FTS postings; delete
//   removes all three structures as one unit.
// - content_hash is unique: identical submissions dedupe to the existing id.
// - Expired entries never appear in search results but stay gettable by id.
//
// Usage:
//
//	mgr, _ := memory.NewManager(memory.Config{DBPath: "/data/memory.db", Provider: provider})
//	defer mgr.Close()
//	res, _ := mgr.Add(ctx, memory.AddInput{Content: "Alice likes coffee"})
//	results, _ := mgr.Search(ctx, memory.SearchOptions{Query: "coffee"})
package memory
