package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	var cfg VectorSearchConfig
	cfg.ApplyDefaults()

	assert.Equal(t, 10, cfg.TopK)
	assert.Equal(t, SearchModeHybrid, cfg.Mode)
	assert.Equal(t, RankingRRF, cfg.Ranking)
	assert.Equal(t, 0.7, cfg.SemanticWeight)
	assert.Equal(t, 0.3, cfg.LexicalWeight)
}

func TestApplyDefaultsKeepsExplicitZeroLambda(t *testing.T) {
	cfg := VectorSearchConfig{MMRLambda: 0}
	cfg.ApplyDefaults()
	assert.Equal(t, 0.0, cfg.MMRLambda, "lambda zero means pure diversity and must survive defaulting")

	cfg = VectorSearchConfig{MMRLambda: -0.5}
	cfg.ApplyDefaults()
	assert.Equal(t, 0.5, cfg.MMRLambda)

	cfg = VectorSearchConfig{MMRLambda: 1.5}
	cfg.ApplyDefaults()
	assert.Equal(t, 0.5, cfg.MMRLambda)

	cfg = VectorSearchConfig{MMRLambda: 1}
	cfg.ApplyDefaults()
	assert.Equal(t, 1.0, cfg.MMRLambda)
}
