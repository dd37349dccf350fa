// Package chunker splits text into chunks suitable for embedding and retrieval.
//
// Fifteen strategies cover prose, markup, source code, structured data, and
// chat transcripts. Each strategy implements the Chunker interface; the
// Service picks and caches chunkers and never fails on bad input, degrading
// to simpler strategies instead.
//
// # Basic Usage
//
//	svc := chunker.NewService(logger, nil)
//	chunks, err := svc.ChunkText(ctx, text, "recursive", types.DefaultChunkConfig(), nil)
//	for _, ch := range chunks {
//	    fmt.Printf("chunk %d: %d bytes at [%d,%d)\n", ch.Position, len(ch.Text), ch.StartChar, ch.EndChar)
//	}
//
// # Strategies
//
// Structural strategies split on document shape:
//   - fixed_size, sliding_window: size-bounded windows over raw text
//   - sentence, paragraph, recursive: natural language boundaries
//   - markdown_aware, code_aware, table_aware, json_aware, conversation_aware:
//     format-specific boundaries (headings, declarations, tables, keys, turns)
//
// Content strategies use signals beyond shape:
//   - semantic: embedding similarity drops mark topic boundaries
//   - topic: vocabulary overlap between paragraphs
//   - token_based: chunks bounded by model tokens rather than bytes
//   - hierarchical: a parent/child tree of summary, section, and paragraph chunks
//   - hybrid: detects the content type and dispatches to the matching strategy
//
// # Fallback Behavior
//
// Unknown strategy names fall back to recursive splitting with a logged
// warning. Invalid configurations fall back to defaults. Strategies that
// need an embedder or a tokenizer degrade to their structural counterparts
// when those are unavailable, so ingestion keeps working offline.
//
// # Offsets
//
// StartChar and EndChar are byte offsets into the original text. Spans
// produced by structural strategies cover the input without gaps, with
// trailing whitespace attached to the preceding chunk.
package chunker
