package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Strategy identifies a chunking algorithm.
type Strategy string

const (
	StrategyFixedSize     Strategy = "fixed_size"
	StrategySentence      Strategy = "sentence"
	StrategyRecursive     Strategy = "recursive"
	StrategyMarkdown      Strategy = "markdown_aware"
	StrategyCode          Strategy = "code_aware"
	StrategySemantic      Strategy = "semantic"
	StrategyToken         Strategy = "token_based"
	StrategyHierarchical  Strategy = "hierarchical"
	StrategyHybrid        Strategy = "hybrid"
	StrategyParagraph     Strategy = "paragraph"
	StrategyTopic         Strategy = "topic"
	StrategySlidingWindow Strategy = "sliding_window"
	StrategyTable         Strategy = "table_aware"
	StrategyConversation  Strategy = "conversation_aware"
	StrategyJSON          Strategy = "json_aware"
)

// allStrategies is the closed set of known strategies.
var allStrategies = map[Strategy]bool{
	StrategyFixedSize:     true,
	StrategySentence:      true,
	StrategyRecursive:     true,
	StrategyMarkdown:      true,
	StrategyCode:          true,
	StrategySemantic:      true,
	StrategyToken:         true,
	StrategyHierarchical:  true,
	StrategyHybrid:        true,
	StrategyParagraph:     true,
	StrategyTopic:         true,
	StrategySlidingWindow: true,
	StrategyTable:         true,
	StrategyConversation:  true,
	StrategyJSON:          true,
}

// ParseStrategy maps a strategy name to its enum value. The boolean reports
// whether the name was recognized; callers are expected to fall back to
// StrategyRecursive when it is false.
func ParseStrategy(name string) (Strategy, bool) {
	s := Strategy(name)
	if allStrategies[s] {
		return s, true
	}
	return StrategyRecursive, false
}

// Chunk is one unit of segmented text.
type Chunk struct {
	// ID is derived deterministically from (position, content hash). It is
	// stable for identical input and position but not globally unique across
	// re-chunking runs.
	ID string

	Text     string
	Metadata map[string]any

	// ParentID and ChildrenIDs wire hierarchical chunks together. Root
	// chunks have no parent, leaf chunks have no children.
	ParentID    string
	ChildrenIDs []string

	// Position is the zero-based index within one chunking run. Positions
	// are contiguous and strictly increasing in output order.
	Position int

	// StartChar and EndChar are offsets into the original input text.
	// They are approximate for token-based strategies.
	StartChar int
	EndChar   int

	// Embedding is populated after embedding generation, never by a chunker.
	Embedding []float32
}

// ChunkID computes the deterministic chunk identifier for a position and
// content pair.
func ChunkID(position int, text string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", position, text)))
	return hex.EncodeToString(sum[:8])
}

// NewChunk builds a chunk with its derived ID and the metadata keys every
// chunker writes (strategy, position, created_at). Extra metadata is merged
// in without overwriting those keys.
func NewChunk(strategy Strategy, text string, position, startChar, endChar int, meta map[string]any) Chunk {
	md := make(map[string]any, len(meta)+3)
	for k, v := range meta {
		md[k] = v
	}
	md["strategy"] = string(strategy)
	md["position"] = position
	md["created_at"] = time.Now().UTC().Format(time.RFC3339)

	return Chunk{
		ID:        ChunkID(position, text),
		Text:      text,
		Metadata:  md,
		Position:  position,
		StartChar: startChar,
		EndChar:   endChar,
	}
}

// ChunkConfig is the immutable configuration for one chunking invocation.
type ChunkConfig struct {
	Strategy            Strategy
	ChunkSize           int
	ChunkOverlap        int
	MinChunkSize        int
	MaxChunkSize        int
	Separators          []string // ordered fallback list for recursive splitting
	SimilarityThreshold float64  // semantic and topic strategies
	UseEmbeddings       bool
	TokenLimit          int // token-based strategy
	HierarchyLevels     int
}

// DefaultChunkConfig returns the baseline configuration used when a caller
// supplies nothing.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Strategy:            StrategyRecursive,
		ChunkSize:           1000,
		ChunkOverlap:        200,
		MinChunkSize:        100,
		MaxChunkSize:        2000,
		Separators:          []string{"\n\n", "\n", ". ", " ", ""},
		SimilarityThreshold: 0.7,
		UseEmbeddings:       false,
		TokenLimit:          256,
		HierarchyLevels:     3,
	}
}

// Validate fails fast on configurations that would silently degrade.
func (c ChunkConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must be non-negative, got %d", ErrInvalidConfig, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			ErrInvalidConfig, c.ChunkOverlap, c.ChunkSize)
	}
	if c.MinChunkSize < 0 {
		return fmt.Errorf("%w: min chunk size must be non-negative, got %d", ErrInvalidConfig, c.MinChunkSize)
	}
	if c.MaxChunkSize > 0 && c.MaxChunkSize < c.ChunkSize {
		return fmt.Errorf("%w: max chunk size %d must be at least chunk size %d",
			ErrInvalidConfig, c.MaxChunkSize, c.ChunkSize)
	}
	if c.TokenLimit < 0 {
		return fmt.Errorf("%w: token limit must be non-negative, got %d", ErrInvalidConfig, c.TokenLimit)
	}
	return nil
}
