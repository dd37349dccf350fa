package types

// SearchMode selects which search channels run for a query.
type SearchMode string

const (
	SearchModeSemantic SearchMode = "semantic" // embedding similarity only
	SearchModeLexical  SearchMode = "lexical"  // keyword / full-text only
	SearchModeHybrid   SearchMode = "hybrid"   // both channels, fused
)

// RankingMethod selects how semantic and lexical result lists are fused.
type RankingMethod string

const (
	RankingRRF      RankingMethod = "rrf"
	RankingWeighted RankingMethod = "weighted"
	RankingMMR      RankingMethod = "mmr"
)

// SearchResult is one retrieved item. Score carries the fused or final
// ranking value; its semantics depend on the ranking method and scores are
// not comparable across methods.
type SearchResult struct {
	ID   string
	Text string

	Score float64

	// SemanticScore and LexicalScore preserve the per-channel component
	// scores after fusion so callers can explain a ranking. Nil when the
	// result never appeared in that channel.
	SemanticScore *float64
	LexicalScore  *float64

	Metadata map[string]any

	// Embedding is populated only when the query explicitly asked for
	// embeddings to be included.
	Embedding []float32
}

// VectorSearchConfig holds query-time search parameters.
type VectorSearchConfig struct {
	TopK    int
	Mode    SearchMode
	Ranking RankingMethod

	// SemanticWeight and LexicalWeight apply to weighted fusion. They are
	// not forced to sum to 1 but conventionally do.
	SemanticWeight float64
	LexicalWeight  float64

	// MMRLambda trades relevance against diversity for MMR fusion, in [0,1].
	MMRLambda float64

	IncludeEmbeddings bool

	// FilterMetadata restricts results to items whose metadata contains
	// every listed key/value pair.
	FilterMetadata map[string]any
}

// DefaultSearchConfig returns the baseline query configuration.
func DefaultSearchConfig() VectorSearchConfig {
	return VectorSearchConfig{
		TopK:           10,
		Mode:           SearchModeHybrid,
		Ranking:        RankingRRF,
		SemanticWeight: 0.7,
		LexicalWeight:  0.3,
		MMRLambda:      0.5,
	}
}

// ApplyDefaults fills zero values with the defaults so partially built
// configs behave sensibly.
func (c *VectorSearchConfig) ApplyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 10
	}
	if c.Mode == "" {
		c.Mode = SearchModeHybrid
	}
	if c.Ranking == "" {
		c.Ranking = RankingRRF
	}
	if c.SemanticWeight == 0 && c.LexicalWeight == 0 {
		c.SemanticWeight = 0.7
		c.LexicalWeight = 0.3
	}
	// Zero is a valid lambda (pure diversity), so only out-of-range
	// values are reset.
	if c.MMRLambda < 0 || c.MMRLambda > 1 {
		c.MMRLambda = 0.5
	}
}

// MatchesFilter reports whether a result's metadata satisfies the filter.
// An empty filter matches everything.
func (r *SearchResult) MatchesFilter(filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	for k, want := range filter {
		got, ok := r.Metadata[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}
