package reranker

import (
	"fmt"
	"math"
	"strings"

	"github.com/recallhq/recall-mcp/pkg/types"

	"github.com/recallhq/recall-mcp/internal/vectordb"
)

// Config controls Max Marginal Relevance reranking. Lambda trades
// relevance (1.0) against diversity (0.0). Diversity is the average of
// the enabled similarity signals between two results.
type Config struct {
	Lambda               float64
	MaxResults           int
	UseSemanticDiversity bool
	UseLexicalDiversity  bool
	UseMetadataDiversity bool

	// MinDiversityScore stops selection early once no remaining
	// candidate's marginal score clears it. Zero disables the cutoff.
	MinDiversityScore float64

	// MaxIterations bounds the greedy loop. Zero means one iteration
	// per requested result.
	MaxIterations int
}

func DefaultConfig() Config {
	return Config{
		Lambda:               0.5,
		MaxResults:           0,
		UseSemanticDiversity: true,
		UseLexicalDiversity:  true,
		UseMetadataDiversity: false,
	}
}

// SimilarityFunc is a caller-supplied pairwise similarity in [0,1].
type SimilarityFunc func(a, b types.SearchResult) float64

// Reranker reorders a scored result list to balance relevance against
// redundancy. It operates on any result list and does not touch the
// underlying store.
type Reranker struct {
	cfg Config
}

func New(cfg Config) *Reranker {
	if cfg.Lambda < 0 || cfg.Lambda > 1 {
		cfg.Lambda = 0.5
	}
	if !cfg.UseSemanticDiversity && !cfg.UseLexicalDiversity && !cfg.UseMetadataDiversity {
		cfg.UseSemanticDiversity = true
	}
	return &Reranker{cfg: cfg}
}

// Rerank greedily selects results maximizing
// lambda*relevance - (1-lambda)*maxSimilarity(selected). Relevance is
// the input score min-max normalized. Lists of zero or one results are
// returned unchanged.
func (r *Reranker) Rerank(results []types.SearchResult) []types.SearchResult {
	return r.rerankWith(results, r.similarity)
}

// RerankWithCustomDiversity runs the same greedy selection with a
// caller-supplied pairwise similarity instead of the configured
// signals.
func (r *Reranker) RerankWithCustomDiversity(results []types.SearchResult, similarity SimilarityFunc) []types.SearchResult {
	if similarity == nil {
		return r.Rerank(results)
	}
	return r.rerankWith(results, similarity)
}

func (r *Reranker) rerankWith(results []types.SearchResult, similarity SimilarityFunc) []types.SearchResult {
	if len(results) <= 1 {
		return results
	}

	limit := r.cfg.MaxResults
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	maxIter := r.cfg.MaxIterations
	if maxIter <= 0 || maxIter > limit {
		maxIter = limit
	}

	relevance := normalizeRelevance(results)
	selected := make([]types.SearchResult, 0, limit)
	picked := make([]bool, len(results))

	for iter := 0; iter < maxIter && len(selected) < limit; iter++ {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i := range results {
			if picked[i] {
				continue
			}
			maxSim := 0.0
			for _, s := range selected {
				if sim := similarity(results[i], s); sim > maxSim {
					maxSim = sim
				}
			}
			score := r.cfg.Lambda*relevance[i] - (1-r.cfg.Lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		if r.cfg.MinDiversityScore > 0 && len(selected) > 0 && bestScore < r.cfg.MinDiversityScore {
			break
		}
		picked[bestIdx] = true
		selected = append(selected, results[bestIdx])
	}
	return selected
}

// similarity averages the enabled diversity signals. Signals that lack
// data (no embeddings, no metadata) drop out of the average instead of
// diluting it.
func (r *Reranker) similarity(a, b types.SearchResult) float64 {
	var sum float64
	n := 0
	if r.cfg.UseSemanticDiversity && len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		sum += vectordb.CosineSimilarity(a.Embedding, b.Embedding)
		n++
	}
	if r.cfg.UseLexicalDiversity && a.Text != "" && b.Text != "" {
		sum += tokenJaccard(a.Text, b.Text)
		n++
	}
	if r.cfg.UseMetadataDiversity && len(a.Metadata) > 0 && len(b.Metadata) > 0 {
		sum += metadataJaccard(a.Metadata, b.Metadata)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func normalizeRelevance(results []types.SearchResult) []float64 {
	lo, hi := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < lo {
			lo = r.Score
		}
		if r.Score > hi {
			hi = r.Score
		}
	}
	norm := make([]float64, len(results))
	for i, r := range results {
		if hi == lo {
			norm[i] = 1.0
			continue
		}
		norm[i] = (r.Score - lo) / (hi - lo)
	}
	return norm
}

func tokenJaccard(a, b string) float64 {
	return jaccard(tokenSet(a), tokenSet(b))
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(text)) {
		t = strings.Trim(t, ".,;:!?\"'()")
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

// metadataJaccard compares metadata as key=value pairs.
func metadataJaccard(a, b map[string]any) float64 {
	setA := make(map[string]struct{}, len(a))
	for k, v := range a {
		setA[k+"="+strings.ToLower(strings.TrimSpace(toString(v)))] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for k, v := range b {
		setB[k+"="+strings.ToLower(strings.TrimSpace(toString(v)))] = struct{}{}
	}
	return jaccard(setA, setB)
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
