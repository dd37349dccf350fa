package reranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall-mcp/pkg/types"
)

func result(id, text string, score float64, emb []float32) types.SearchResult {
	return types.SearchResult{ID: id, Text: text, Score: score, Embedding: emb}
}

func ids(results []types.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestRerankPassthroughSmallInputs(t *testing.T) {
	r := New(DefaultConfig())
	assert.Empty(t, r.Rerank(nil))

	one := []types.SearchResult{result("a", "text", 0.9, []float32{1, 0})}
	assert.Equal(t, one, r.Rerank(one))
}

func TestRerankFullRelevancePreservesOrder(t *testing.T) {
	// Lambda 1 must behave like a no-op sort by relevance.
	input := []types.SearchResult{
		result("a", "alpha text", 0.9, []float32{1, 0}),
		result("b", "alpha text", 0.8, []float32{1, 0}),
		result("c", "gamma text", 0.7, []float32{0, 1}),
	}
	cfg := DefaultConfig()
	cfg.Lambda = 1.0
	got := New(cfg).Rerank(input)
	assert.Equal(t, []string{"a", "b", "c"}, ids(got))
}

func TestRerankFullDiversityPunishesDuplicates(t *testing.T) {
	// b duplicates a in both embedding and text; c is different in both.
	input := []types.SearchResult{
		result("a", "walking the dog", 0.9, []float32{1, 0}),
		result("b", "walking the dog", 0.85, []float32{1, 0}),
		result("c", "quarterly tax filing", 0.2, []float32{0, 1}),
	}
	cfg := DefaultConfig()
	cfg.Lambda = 0.0
	got := New(cfg).Rerank(input)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID, "first pick is still the most relevant")
	assert.Equal(t, "c", got[1].ID, "full diversity promotes the distinct result")
	assert.Equal(t, "b", got[2].ID)
}

func TestRerankBalancedKeepsRelevantButDiverse(t *testing.T) {
	input := []types.SearchResult{
		result("a", "walking the dog in the park", 1.0, []float32{1, 0}),
		result("dup", "walking the dog in the park", 0.95, []float32{1, 0}),
		result("c", "pasta recipe with garlic", 0.6, []float32{0, 1}),
	}
	cfg := DefaultConfig()
	cfg.Lambda = 0.5
	got := New(cfg).Rerank(input)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestRerankMaxResultsTruncates(t *testing.T) {
	input := []types.SearchResult{
		result("a", "one", 0.9, []float32{1, 0}),
		result("b", "two", 0.8, []float32{0, 1}),
		result("c", "three", 0.7, []float32{1, 1}),
	}
	cfg := DefaultConfig()
	cfg.MaxResults = 2
	got := New(cfg).Rerank(input)
	assert.Len(t, got, 2)
}

func TestRerankMetadataDiversity(t *testing.T) {
	a := result("a", "", 0.9, nil)
	a.Metadata = map[string]any{"source": "notes.md"}
	b := result("b", "", 0.85, nil)
	b.Metadata = map[string]any{"source": "notes.md"}
	c := result("c", "", 0.5, nil)
	c.Metadata = map[string]any{"source": "mail"}

	cfg := Config{Lambda: 0.2, UseMetadataDiversity: true}
	got := New(cfg).Rerank([]types.SearchResult{a, b, c})
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID, "same-source duplicate is deferred")
}

func TestRerankMissingSignalsDropOut(t *testing.T) {
	// No embeddings anywhere: semantic signal must not zero the average.
	input := []types.SearchResult{
		result("a", "walking the dog", 0.9, nil),
		result("b", "walking the dog", 0.85, nil),
		result("c", "completely different words", 0.3, nil),
	}
	cfg := DefaultConfig()
	cfg.Lambda = 0.1
	got := New(cfg).Rerank(input)
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[1].ID, "lexical signal alone must still drive diversity")
}

func TestNewClampsInvalidLambda(t *testing.T) {
	r := New(Config{Lambda: 3.5, UseSemanticDiversity: true})
	assert.Equal(t, 0.5, r.cfg.Lambda)
}

func TestRerankWithCustomDiversity(t *testing.T) {
	// A custom similarity that treats results with the same text prefix
	// as duplicates must push the prefix-sharing result last.
	input := []types.SearchResult{
		result("a", "go release notes", 1.0, nil),
		result("b", "go release overview", 0.9, nil),
		result("c", "rust survey", 0.8, nil),
	}
	cfg := DefaultConfig()
	cfg.Lambda = 0.3
	r := New(cfg)

	samePrefix := func(x, y types.SearchResult) float64 {
		if x.Text[:2] == y.Text[:2] {
			return 1.0
		}
		return 0.0
	}
	out := r.RerankWithCustomDiversity(input, samePrefix)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"a", "c", "b"}, ids(out))

	// A nil function falls back to the configured signals.
	out = r.RerankWithCustomDiversity(input, nil)
	require.Len(t, out, 3)
}

func TestRerankMaxIterationsBounds(t *testing.T) {
	input := []types.SearchResult{
		result("a", "one", 0.9, nil),
		result("b", "two", 0.8, nil),
		result("c", "three", 0.7, nil),
	}
	cfg := DefaultConfig()
	cfg.MaxIterations = 2
	r := New(cfg)

	out := r.Rerank(input)
	assert.Len(t, out, 2)
}

func TestRerankMinDiversityScoreStopsEarly(t *testing.T) {
	// After the first pick every remaining candidate is an exact
	// duplicate, so the marginal score of the second pick is negative
	// and the cutoff halts selection.
	input := []types.SearchResult{
		result("a", "same words here", 0.9, []float32{1, 0}),
		result("b", "same words here", 0.9, []float32{1, 0}),
		result("c", "same words here", 0.9, []float32{1, 0}),
	}
	cfg := DefaultConfig()
	cfg.Lambda = 0.5
	cfg.MinDiversityScore = 0.1
	r := New(cfg)

	out := r.Rerank(input)
	assert.Len(t, out, 1)
}
