// Package types defines the shared value objects for the recall engine:
// chunks produced by the chunking pipeline, search results returned by the
// vector backends, and the configuration structs that parameterize both.
//
// Everything in this package is a plain value with no shared mutable state.
// Chunks carry their position and character offsets into the original input
// so callers can reconstruct context windows; search results carry the fused
// score plus the preserved per-channel component scores for explainability.
package types
