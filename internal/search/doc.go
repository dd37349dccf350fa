// Package search orchestrates the memory pipeline: chunking incoming
// text, embedding chunks and queries, persisting to a vector backend,
// and answering queries through tiered hybrid search that degrades to
// lexical-only or vector-only passes instead of failing outright.
package search
