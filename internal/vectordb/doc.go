// Package vectordb stores embedded chunks and searches them by vector
// similarity, full text, or both.
//
// Three backends implement the DB contract:
//   - SQLiteDB: durable storage with an FTS5 lexical index and Go-side
//     cosine similarity (purego driver, no cgo needed)
//   - ChromemDB: persistent embedded vector store, semantic only
//   - MemoryDB: in-process store for tests and single-shot use
//
// Every operation is scoped by user id. A record owned by another user
// behaves exactly like a record that does not exist.
//
// # Hybrid Search
//
// The Hybrid wrapper runs both search legs in parallel and fuses the
// two ranked lists:
//
//	db, _ := vectordb.NewSQLite("recall.db")
//	h := vectordb.NewHybrid(db, logger)
//	results, err := h.Search(ctx, userID, query, queryVec, cfg)
//
// One failed leg is tolerated; the surviving list is used alone. Fusion
// methods are Reciprocal Rank Fusion, weighted normalized scores, and
// Max Marginal Relevance over an RRF candidate pool.
package vectordb
