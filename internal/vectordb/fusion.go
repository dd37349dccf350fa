package vectordb

import (
	"math"
	"sort"

	"github.com/recallhq/recall-mcp/pkg/types"
)

// DefaultRRFConstant is the k in 1/(k+rank).
const DefaultRRFConstant = 60.0

// FuseRRF combines two ranked lists with Reciprocal Rank Fusion.
// Ranks are 1-based; a document absent from a list is charged the rank
// len(list)+1 so presence in both lists always beats presence in one.
func FuseRRF(semantic, lexical []types.SearchResult, k float64, topK int) []types.SearchResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	semRank := rankByID(semantic)
	lexRank := rankByID(lexical)
	merged := mergeResults(semantic, lexical)

	for id, r := range merged {
		semPos, inSem := semRank[id]
		if !inSem {
			semPos = len(semantic) + 1
		}
		lexPos, inLex := lexRank[id]
		if !inLex {
			lexPos = len(lexical) + 1
		}
		r.Score = 1.0/(k+float64(semPos)) + 1.0/(k+float64(lexPos))
		merged[id] = r
	}
	return sortAndTruncate(merged, topK)
}

// FuseWeighted combines two lists by min-max normalizing each list's
// scores and summing them under the given weights. A document absent
// from a list contributes zero for that side.
func FuseWeighted(semantic, lexical []types.SearchResult, semWeight, lexWeight float64, topK int) []types.SearchResult {
	semNorm := normalizeScores(semantic)
	lexNorm := normalizeScores(lexical)
	merged := mergeResults(semantic, lexical)

	for id, r := range merged {
		r.Score = semWeight*semNorm[id] + lexWeight*lexNorm[id]
		merged[id] = r
	}
	return sortAndTruncate(merged, topK)
}

// FuseMMR builds an RRF-fused candidate pool and then selects topK
// results greedily by Max Marginal Relevance, trading relevance against
// redundancy with the already-selected set. Candidates without
// embeddings are treated as maximally diverse.
func FuseMMR(semantic, lexical []types.SearchResult, lambda float64, topK int) []types.SearchResult {
	pool := FuseRRF(semantic, lexical, DefaultRRFConstant, 0)
	if len(pool) == 0 {
		return nil
	}
	if lambda < 0 || lambda > 1 {
		lambda = 0.5
	}
	if topK <= 0 || topK > len(pool) {
		topK = len(pool)
	}

	// Normalize RRF scores to [0,1] so lambda weighs comparable terms.
	maxScore := pool[0].Score
	relevance := make([]float64, len(pool))
	for i, r := range pool {
		if maxScore > 0 {
			relevance[i] = r.Score / maxScore
		}
	}

	selected := make([]types.SearchResult, 0, topK)
	picked := make([]bool, len(pool))
	for len(selected) < topK {
		bestIdx := -1
		bestScore := math.Inf(-1)
		for i := range pool {
			if picked[i] {
				continue
			}
			maxSim := 0.0
			for _, s := range selected {
				if sim := CosineSimilarity(pool[i].Embedding, s.Embedding); sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim
			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		picked[bestIdx] = true
		selected = append(selected, pool[bestIdx])
	}
	return selected
}

// CosineSimilarity returns the cosine of two vectors, or 0 when the
// dimensions differ or either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
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

func rankByID(results []types.SearchResult) map[string]int {
	ranks := make(map[string]int, len(results))
	for i, r := range results {
		if _, seen := ranks[r.ID]; !seen {
			ranks[r.ID] = i + 1
		}
	}
	return ranks
}

// normalizeScores min-max scales a list's scores to [0,1]. A list whose
// scores are all equal normalizes to 1.0 for every member.
func normalizeScores(results []types.SearchResult) map[string]float64 {
	norm := make(map[string]float64, len(results))
	if len(results) == 0 {
		return norm
	}
	lo, hi := results[0].Score, results[0].Score
	for _, r := range results[1:] {
		if r.Score < lo {
			lo = r.Score
		}
		if r.Score > hi {
			hi = r.Score
		}
	}
	for _, r := range results {
		if hi == lo {
			norm[r.ID] = 1.0
			continue
		}
		norm[r.ID] = (r.Score - lo) / (hi - lo)
	}
	return norm
}

// mergeResults indexes both lists by id, recording per-side scores and
// keeping the richer copy of text, metadata, and embedding.
func mergeResults(semantic, lexical []types.SearchResult) map[string]types.SearchResult {
	merged := make(map[string]types.SearchResult, len(semantic)+len(lexical))
	for _, r := range semantic {
		score := r.Score
		r.SemanticScore = &score
		merged[r.ID] = r
	}
	for _, r := range lexical {
		score := r.Score
		if existing, ok := merged[r.ID]; ok {
			existing.LexicalScore = &score
			if existing.Text == "" {
				existing.Text = r.Text
			}
			if existing.Metadata == nil {
				existing.Metadata = r.Metadata
			}
			if len(existing.Embedding) == 0 {
				existing.Embedding = r.Embedding
			}
			merged[r.ID] = existing
			continue
		}
		r.LexicalScore = &score
		merged[r.ID] = r
	}
	return merged
}

// sortAndTruncate orders by fused score descending with id as the tie
// breaker for determinism. topK <= 0 means no truncation.
func sortAndTruncate(merged map[string]types.SearchResult, topK int) []types.SearchResult {
	out := make([]types.SearchResult, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
