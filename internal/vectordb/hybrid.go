package vectordb

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/recallhq/recall-mcp/pkg/types"
)

// searchLeg carries one side of a parallel dual search.
type searchLeg struct {
	results []types.SearchResult
	err     error
}

// Hybrid wraps a backend with mode dispatch, parallel dual search, and
// score fusion. Backends only implement the two search primitives.
type Hybrid struct {
	backend DB
	log     zerolog.Logger
}

func NewHybrid(backend DB, log zerolog.Logger) *Hybrid {
	return &Hybrid{
		backend: backend,
		log:     log.With().Str("component", "vectordb").Str("backend", backend.Name()).Logger(),
	}
}

// Backend exposes the wrapped store for direct operations.
func (h *Hybrid) Backend() DB { return h.backend }

// Search runs the configured search mode. In hybrid mode both legs run
// in parallel and a single failed leg is tolerated; results are fused
// by the configured ranking method.
func (h *Hybrid) Search(ctx context.Context, userID, query string, queryVec []float32, cfg types.VectorSearchConfig) ([]types.SearchResult, error) {
	cfg.ApplyDefaults()

	var results []types.SearchResult
	var err error
	switch cfg.Mode {
	case types.SearchModeSemantic:
		results, err = h.backend.SearchVector(ctx, userID, queryVec, cfg.TopK, cfg.FilterMetadata)
	case types.SearchModeLexical:
		results, err = h.backend.SearchText(ctx, userID, query, cfg.TopK, cfg.FilterMetadata)
		if err == nil && results == nil {
			h.log.Warn().Msg("backend has no lexical index, using semantic search")
			results, err = h.backend.SearchVector(ctx, userID, queryVec, cfg.TopK, cfg.FilterMetadata)
		}
	case types.SearchModeHybrid:
		results, err = h.dualSearch(ctx, userID, query, queryVec, cfg)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}

	results = filterResults(results, cfg.FilterMetadata)
	if len(results) > cfg.TopK {
		results = results[:cfg.TopK]
	}
	if !cfg.IncludeEmbeddings {
		for i := range results {
			results[i].Embedding = nil
		}
	}
	return results, nil
}

func (h *Hybrid) dualSearch(ctx context.Context, userID, query string, queryVec []float32, cfg types.VectorSearchConfig) ([]types.SearchResult, error) {
	// Oversample both legs so fusion has candidates beyond topK.
	fetchK := cfg.TopK * 2

	vecChan := make(chan searchLeg, 1)
	txtChan := make(chan searchLeg, 1)
	go func() {
		var leg searchLeg
		leg.results, leg.err = h.backend.SearchVector(ctx, userID, queryVec, fetchK, cfg.FilterMetadata)
		select {
		case vecChan <- leg:
		case <-ctx.Done():
		}
	}()
	go func() {
		var leg searchLeg
		leg.results, leg.err = h.backend.SearchText(ctx, userID, query, fetchK, cfg.FilterMetadata)
		select {
		case txtChan <- leg:
		case <-ctx.Done():
		}
	}()

	var vecLeg, txtLeg searchLeg
	var vecDone, txtDone bool
	for !vecDone || !txtDone {
		select {
		case vecLeg = <-vecChan:
			vecDone = true
		case txtLeg = <-txtChan:
			txtDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if vecLeg.err != nil && txtLeg.err != nil {
		return nil, fmt.Errorf("both search legs failed: vector=%w, text=%v", vecLeg.err, txtLeg.err)
	}
	if vecLeg.err != nil {
		h.log.Warn().Err(vecLeg.err).Msg("vector leg failed, using lexical results only")
	}
	if txtLeg.err != nil {
		h.log.Warn().Err(txtLeg.err).Msg("lexical leg failed, using vector results only")
	}

	return h.fuse(vecLeg.results, txtLeg.results, cfg), nil
}

func (h *Hybrid) fuse(semantic, lexical []types.SearchResult, cfg types.VectorSearchConfig) []types.SearchResult {
	switch cfg.Ranking {
	case types.RankingRRF:
		return FuseRRF(semantic, lexical, DefaultRRFConstant, cfg.TopK)
	case types.RankingWeighted:
		return FuseWeighted(semantic, lexical, cfg.SemanticWeight, cfg.LexicalWeight, cfg.TopK)
	case types.RankingMMR:
		return FuseMMR(semantic, lexical, cfg.MMRLambda, cfg.TopK)
	default:
		h.log.Warn().Str("ranking", string(cfg.Ranking)).Msg("unknown ranking method, returning semantic results")
		if len(semantic) > cfg.TopK {
			return semantic[:cfg.TopK]
		}
		return semantic
	}
}

func filterResults(results []types.SearchResult, filter map[string]any) []types.SearchResult {
	if len(filter) == 0 {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if r.MatchesFilter(filter) {
			out = append(out, r)
		}
	}
	return out
}
