// Package reranker reorders search results with Max Marginal Relevance,
// trading relevance against redundancy across semantic, lexical, and
// metadata similarity signals.
package reranker
