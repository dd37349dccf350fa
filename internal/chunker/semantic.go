package chunker

import (
	"context"
	"math"

	"github.com/recallhq/recall-mcp/pkg/types"
)

// SentenceEmbedder supplies sentence vectors for boundary detection.
// The full embedder interface is not required here.
type SentenceEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SemanticChunker groups sentences by embedding similarity: a drop in
// cosine similarity between consecutive sentences below the configured
// threshold starts a new chunk. Without an embedder, or when embedding
// fails, it degrades to sentence chunking.
type SemanticChunker struct {
	cfg      types.ChunkConfig
	embedder SentenceEmbedder
}

func NewSemanticChunker(cfg types.ChunkConfig, embedder SentenceEmbedder) *SemanticChunker {
	return &SemanticChunker{cfg: cfg, embedder: embedder}
}

func (c *SemanticChunker) Strategy() types.Strategy { return types.StrategySemantic }

func (c *SemanticChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}
	fallback := func() ([]types.Chunk, error) {
		return NewSentenceChunker(c.cfg).Chunk(ctx, text, meta)
	}
	if c.embedder == nil || !c.cfg.UseEmbeddings || len(sentences) < 2 {
		return fallback()
	}

	vectors := make([][]float32, len(sentences))
	for i, s := range sentences {
		vec, err := c.embedder.Embed(ctx, s.text)
		if err != nil || len(vec) == 0 {
			return fallback()
		}
		vectors[i] = vec
	}

	var spans []span
	group := []span{sentences[0]}
	groupLen := len(sentences[0].text)
	for i := 1; i < len(sentences); i++ {
		sim := cosineSimilarity32(vectors[i-1], vectors[i])
		boundary := sim < c.cfg.SimilarityThreshold
		if boundary || groupLen+len(sentences[i].text) > c.cfg.ChunkSize {
			spans = append(spans, joinSpans(group))
			group = group[:0]
			groupLen = 0
		}
		group = append(group, sentences[i])
		groupLen += len(sentences[i].text)
	}
	if len(group) > 0 {
		spans = append(spans, joinSpans(group))
	}
	return buildChunks(types.StrategySemantic, spans, meta), nil
}

// cosineSimilarity32 returns 0 for mismatched or zero-norm inputs.
func cosineSimilarity32(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
