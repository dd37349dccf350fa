package search

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/recallhq/recall-mcp/internal/chunker"
	"github.com/recallhq/recall-mcp/internal/embedder"
	"github.com/recallhq/recall-mcp/internal/reranker"
	"github.com/recallhq/recall-mcp/internal/vectordb"
	"github.com/recallhq/recall-mcp/pkg/types"
)

const embedConcurrency = 4

// StoreRequest describes text to remember for a user.
type StoreRequest struct {
	UserID   string
	Text     string
	Strategy string
	Config   types.ChunkConfig
	Metadata map[string]any
}

// StoreResponse reports what was persisted.
type StoreResponse struct {
	ChunkIDs []string `json:"chunk_ids"`
	Stored   int      `json:"stored"`
	Skipped  int      `json:"skipped"`
}

// SearchResponse is the envelope returned to callers. Success stays
// true through degraded searches; it turns false only when no result
// channel was available at all.
type SearchResponse struct {
	Success  bool                 `json:"success"`
	Results  []types.SearchResult `json:"results"`
	Total    int                  `json:"total"`
	Mode     types.SearchMode     `json:"mode"`
	Degraded bool                 `json:"degraded,omitempty"`
	Duration time.Duration        `json:"duration"`
}

// Service orchestrates the store and search pipelines: chunking text,
// embedding chunks and queries, persisting to the backend, and fusing
// search results.
type Service struct {
	log      zerolog.Logger
	chunks   *chunker.Service
	embedder embedder.Embedder
	hybrid   *vectordb.Hybrid
	reranker *reranker.Reranker
}

// NewService wires the pipeline. rr may be nil to disable the final
// diversity pass.
func NewService(log zerolog.Logger, chunks *chunker.Service, emb embedder.Embedder, hybrid *vectordb.Hybrid, rr *reranker.Reranker) *Service {
	return &Service{
		log:      log.With().Str("component", "search").Logger(),
		chunks:   chunks,
		embedder: emb,
		hybrid:   hybrid,
		reranker: rr,
	}
}

// StoreKnowledge chunks the text, embeds each chunk, and persists them.
// Chunks whose embedding fails are skipped with a warning rather than
// failing the whole request.
func (s *Service) StoreKnowledge(ctx context.Context, req StoreRequest) (*StoreResponse, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	chunks, err := s.chunks.ChunkText(ctx, req.Text, req.Strategy, req.Config, req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("chunking text: %w", err)
	}
	if len(chunks) == 0 {
		return &StoreResponse{}, nil
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts, embedConcurrency)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}

	stored := make([]types.Chunk, 0, len(chunks))
	skipped := 0
	for i, vec := range vectors {
		if len(vec) == 0 {
			s.log.Warn().Str("chunk", chunks[i].ID).Msg("embedding failed, skipping chunk")
			skipped++
			continue
		}
		chunks[i].Embedding = vec
		stored = append(stored, chunks[i])
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("all %d chunks failed to embed", len(chunks))
	}

	if err := s.hybrid.Backend().Store(ctx, req.UserID, stored); err != nil {
		return nil, fmt.Errorf("storing chunks: %w", err)
	}

	resp := &StoreResponse{Stored: len(stored), Skipped: skipped}
	for _, ch := range stored {
		resp.ChunkIDs = append(resp.ChunkIDs, ch.ID)
	}
	s.log.Debug().Str("user", req.UserID).Int("stored", resp.Stored).Int("skipped", skipped).Msg("knowledge stored")
	return resp, nil
}

// Search answers a query through up to three tiers: the configured
// hybrid search, a lexical-only pass when the query cannot be embedded,
// and a vector-only pass when the lexical channel is what failed. The
// envelope reports degradation instead of surfacing partial failures
// as errors.
func (s *Service) Search(ctx context.Context, userID, query string, cfg types.VectorSearchConfig) (*SearchResponse, error) {
	start := time.Now()
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	cfg.ApplyDefaults()

	queryVec, embErr := s.embedder.Embed(ctx, query)
	if embErr != nil {
		s.log.Warn().Err(embErr).Msg("query embedding failed, degrading to lexical search")
		return s.lexicalFallback(ctx, userID, query, cfg, start)
	}

	results, err := s.hybrid.Search(ctx, userID, query, queryVec, cfg)
	if err != nil {
		s.log.Warn().Err(err).Msg("hybrid search failed, degrading to vector-only search")
		return s.vectorFallback(ctx, userID, queryVec, cfg, start)
	}

	results = s.rerank(results)
	return &SearchResponse{
		Success:  true,
		Results:  results,
		Total:    len(results),
		Mode:     cfg.Mode,
		Duration: time.Since(start),
	}, nil
}

func (s *Service) lexicalFallback(ctx context.Context, userID, query string, cfg types.VectorSearchConfig, start time.Time) (*SearchResponse, error) {
	results, err := s.hybrid.Backend().SearchText(ctx, userID, query, cfg.TopK, cfg.FilterMetadata)
	if err != nil || results == nil {
		if err != nil {
			s.log.Error().Err(err).Msg("lexical fallback failed")
		}
		return &SearchResponse{
			Success:  false,
			Mode:     types.SearchModeLexical,
			Degraded: true,
			Duration: time.Since(start),
		}, nil
	}
	return &SearchResponse{
		Success:  true,
		Results:  results,
		Total:    len(results),
		Mode:     types.SearchModeLexical,
		Degraded: true,
		Duration: time.Since(start),
	}, nil
}

func (s *Service) vectorFallback(ctx context.Context, userID string, queryVec []float32, cfg types.VectorSearchConfig, start time.Time) (*SearchResponse, error) {
	results, err := s.hybrid.Backend().SearchVector(ctx, userID, queryVec, cfg.TopK, cfg.FilterMetadata)
	if err != nil {
		s.log.Error().Err(err).Msg("vector fallback failed, no search channel available")
		return &SearchResponse{
			Success:  false,
			Mode:     types.SearchModeSemantic,
			Degraded: true,
			Duration: time.Since(start),
		}, nil
	}
	if !cfg.IncludeEmbeddings {
		for i := range results {
			results[i].Embedding = nil
		}
	}
	return &SearchResponse{
		Success:  true,
		Results:  s.rerank(results),
		Total:    len(results),
		Mode:     types.SearchModeSemantic,
		Degraded: true,
		Duration: time.Since(start),
	}, nil
}

func (s *Service) rerank(results []types.SearchResult) []types.SearchResult {
	if s.reranker == nil || len(results) <= 1 {
		return results
	}
	return s.reranker.Rerank(results)
}

// Delete removes records for a user.
func (s *Service) Delete(ctx context.Context, userID string, ids []string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	return s.hybrid.Backend().Delete(ctx, userID, ids)
}

// Get fetches one record for a user.
func (s *Service) Get(ctx context.Context, userID, id string) (*types.SearchResult, error) {
	return s.hybrid.Backend().Get(ctx, userID, id)
}

// List pages through a user's records.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]types.SearchResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return s.hybrid.Backend().List(ctx, userID, limit, offset)
}

// UserStats reports per-user and backend-wide figures.
type UserStats struct {
	UserMemories int           `json:"user_memories"`
	Backend      vectordb.Stats `json:"backend"`
	Provider     string        `json:"embedding_provider"`
	Dimension    int           `json:"embedding_dimension"`
}

func (s *Service) Stats(ctx context.Context, userID string) (*UserStats, error) {
	count, err := s.hybrid.Backend().Count(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting memories: %w", err)
	}
	backendStats, err := s.hybrid.Backend().Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading backend stats: %w", err)
	}
	return &UserStats{
		UserMemories: count,
		Backend:      backendStats,
		Provider:     s.embedder.Provider(),
		Dimension:    s.embedder.Dimension(),
	}, nil
}
