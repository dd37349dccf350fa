// Package embedder generates vector embeddings for text chunks.
//
// Three providers are supported: a local Ollama server, the OpenAI API,
// and a deterministic offline provider for tests and degraded operation.
// All providers share an LRU cache keyed by content hash and retry
// transient failures with exponential backoff.
//
// # Basic Usage
//
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	vec, err := emb.Embed(ctx, "the text to embed")
//
// # Batch Processing
//
// EmbedBatch embeds many texts under bounded concurrency. A failing
// item produces a zero-length vector in its slot instead of aborting
// the batch, so callers can skip or retry individual items:
//
//	vectors, err := emb.EmbedBatch(ctx, texts, 4)
//	for i, v := range vectors {
//	    if len(v) == 0 {
//	        continue // this text failed to embed
//	    }
//	}
//
// # Provider Selection
//
// NewFromEnv picks a provider from the environment:
//
//  1. RECALL_EMBEDDING_PROVIDER set: use that provider
//  2. OPENAI_API_KEY set: use OpenAI
//  3. RECALL_OLLAMA_URL set: use Ollama
//  4. otherwise: local offline provider
package embedder
