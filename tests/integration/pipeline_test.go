package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/recallhq/recall-mcp/internal/chunker"
	"github.com/recallhq/recall-mcp/internal/embedder"
	"github.com/recallhq/recall-mcp/internal/reranker"
	"github.com/recallhq/recall-mcp/internal/search"
	"github.com/recallhq/recall-mcp/internal/vectordb"
	"github.com/recallhq/recall-mcp/pkg/types"
)

// PipelineTestSuite exercises the full store and search pipeline
// against the SQLite backend.
type PipelineTestSuite struct {
	suite.Suite
	service *search.Service
	backend vectordb.DB
	ctx     context.Context
}

func (s *PipelineTestSuite) SetupTest() {
	s.ctx = context.Background()
	log := zerolog.Nop()

	backend, err := vectordb.NewSQLite(filepath.Join(s.T().TempDir(), "recall.db"))
	s.Require().NoError(err)
	s.backend = backend

	emb := embedder.NewLocalProvider(embedder.NewCache(256))
	s.service = search.NewService(
		log,
		chunker.NewService(log, nil),
		emb,
		vectordb.NewHybrid(backend, log),
		reranker.New(reranker.DefaultConfig()),
	)
}

func (s *PipelineTestSuite) TearDownTest() {
	s.Require().NoError(s.backend.Close())
}

func (s *PipelineTestSuite) seed(userID string, texts ...string) {
	for _, text := range texts {
		resp, err := s.service.StoreKnowledge(s.ctx, search.StoreRequest{
			UserID:   userID,
			Text:     text,
			Strategy: "sentence",
		})
		s.Require().NoError(err)
		s.Require().GreaterOrEqual(resp.Stored, 1)
	}
}

func (s *PipelineTestSuite) TestStoreSearchRoundtrip() {
	s.seed("alice",
		"The espresso machine needs descaling every three months.",
		"Alice keeps her hiking gear in the garage loft.",
		"The quarterly report is due on the first Friday.",
	)

	resp, err := s.service.Search(s.ctx, "alice", "espresso machine descaling", types.VectorSearchConfig{TopK: 3})
	s.Require().NoError(err)
	s.True(resp.Success)
	s.False(resp.Degraded)
	s.Equal(types.SearchModeHybrid, resp.Mode)
	s.Require().NotEmpty(resp.Results)
	s.Contains(resp.Results[0].Text, "espresso")
}

func (s *PipelineTestSuite) TestRankingMethods() {
	s.seed("alice",
		"Postgres connection pooling with pgbouncer.",
		"Redis caching for session storage.",
		"Kafka consumer group rebalancing.",
	)

	for _, ranking := range []types.RankingMethod{types.RankingRRF, types.RankingWeighted, types.RankingMMR} {
		resp, err := s.service.Search(s.ctx, "alice", "connection pooling", types.VectorSearchConfig{
			TopK:    3,
			Ranking: ranking,
		})
		s.Require().NoError(err, "ranking %s", ranking)
		s.True(resp.Success, "ranking %s", ranking)
		s.NotEmpty(resp.Results, "ranking %s", ranking)
	}
}

func (s *PipelineTestSuite) TestUserIsolation() {
	s.seed("alice", "Alice's private notes about the merger.")
	s.seed("bob", "Bob's recipe for sourdough bread.")

	resp, err := s.service.Search(s.ctx, "bob", "merger", types.VectorSearchConfig{TopK: 5})
	s.Require().NoError(err)
	for _, r := range resp.Results {
		s.NotContains(r.Text, "merger")
	}
}

func (s *PipelineTestSuite) TestDeleteAndStats() {
	s.seed("carol", "Carol tracks her marathon training pace.")

	stats, err := s.service.Stats(s.ctx, "carol")
	s.Require().NoError(err)
	s.GreaterOrEqual(stats.UserMemories, 1)
	s.Equal("local", stats.Provider)
	s.Equal("sqlite", stats.Backend.Backend)

	searchResp, err := s.service.Search(s.ctx, "carol", "marathon training", types.VectorSearchConfig{TopK: 5})
	s.Require().NoError(err)
	s.Require().NotEmpty(searchResp.Results)

	ids := make([]string, 0, len(searchResp.Results))
	for _, r := range searchResp.Results {
		ids = append(ids, r.ID)
	}
	s.Require().NoError(s.service.Delete(s.ctx, "carol", ids))

	stats, err = s.service.Stats(s.ctx, "carol")
	s.Require().NoError(err)
	s.Equal(0, stats.UserMemories)
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}
