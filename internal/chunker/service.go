package chunker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/recallhq/recall-mcp/pkg/types"
)

const defaultBatchConcurrency = 4

var shortLineRe = regexp.MustCompile(`(?m)^.{1,60}$`)

// Service owns chunker construction and dispatch. Chunkers are built
// lazily and cached per strategy and configuration; the token counter
// is probed once at construction.
type Service struct {
	log      zerolog.Logger
	embedder SentenceEmbedder
	counter  TokenCounter

	mu    sync.RWMutex
	cache map[string]Chunker
}

// NewService builds a chunking service. embedder may be nil; semantic
// chunking then degrades to sentence chunking.
func NewService(log zerolog.Logger, embedder SentenceEmbedder) *Service {
	return &Service{
		log:      log.With().Str("component", "chunker").Logger(),
		embedder: embedder,
		counter:  NewTokenCounter(),
		cache:    make(map[string]Chunker),
	}
}

// ChunkText splits text with the named strategy. It never fails on bad
// input: an unknown strategy falls back to recursive with a warning, an
// invalid config falls back to defaults, and a chunker error falls back
// to a fixed-size split.
func (s *Service) ChunkText(ctx context.Context, text string, strategyName string, cfg types.ChunkConfig, meta map[string]any) ([]types.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var strategy types.Strategy
	if strategyName == "" || strategyName == "auto" {
		strategy = s.OptimalStrategy(text)
	} else {
		var known bool
		strategy, known = types.ParseStrategy(strategyName)
		if !known {
			s.log.Warn().Str("strategy", strategyName).Msg("unknown chunking strategy, using recursive")
		}
	}
	if err := cfg.Validate(); err != nil {
		s.log.Warn().Err(err).Str("strategy", string(strategy)).Msg("invalid chunk config, using defaults")
		cfg = types.DefaultChunkConfig()
		cfg.Strategy = strategy
	}

	ch := s.chunkerFor(strategy, cfg)
	chunks, err := ch.Chunk(ctx, text, meta)
	if err != nil {
		s.log.Warn().Err(err).Str("strategy", string(strategy)).Msg("chunker failed, falling back to fixed size")
		return NewFixedSizeChunker(cfg).Chunk(ctx, text, meta)
	}
	return chunks, nil
}

// ChunkDocument reads a file and chunks its contents, attaching source
// metadata. Unreadable files are a hard error.
func (s *Service) ChunkDocument(ctx context.Context, path string, strategyName string, cfg types.ChunkConfig, meta map[string]any) ([]types.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	docMeta := mergeMeta(meta, map[string]any{
		"source":         path,
		"file_extension": ext,
		"file_size":      len(data),
	})

	if strategyName == "" || strategyName == "auto" {
		strategyName = string(strategyForExtension(ext))
	}
	return s.ChunkText(ctx, string(data), strategyName, cfg, docMeta)
}

// BatchItem pairs an input text with its metadata for batch chunking.
type BatchItem struct {
	Text     string
	Metadata map[string]any
}

// ChunkBatch chunks many texts concurrently under a bounded semaphore.
// A failing item yields an empty slot rather than aborting the batch.
func (s *Service) ChunkBatch(ctx context.Context, items []BatchItem, strategyName string, cfg types.ChunkConfig, maxConcurrent int) ([][]types.Chunk, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultBatchConcurrency
	}
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	results := make([][]types.Chunk, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return results, err
		}
		wg.Add(1)
		go func(i int, item BatchItem) {
			defer sem.Release(1)
			defer wg.Done()
			chunks, err := s.ChunkText(ctx, item.Text, strategyName, cfg, item.Metadata)
			if err != nil {
				s.log.Warn().Err(err).Int("item", i).Msg("batch item chunking failed")
				return
			}
			results[i] = chunks
		}(i, item)
	}
	wg.Wait()
	return results, nil
}

// OptimalStrategy guesses the best strategy for a text from cheap
// structural signals.
func (s *Service) OptimalStrategy(text string) types.Strategy {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return types.StrategyRecursive
	}
	switch DetectContentType(trimmed) {
	case "code":
		return types.StrategyCode
	case "markdown":
		return types.StrategyMarkdown
	case "json":
		return types.StrategyJSON
	case "conversation":
		return types.StrategyConversation
	case "table":
		return types.StrategyTable
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) > 20 {
		short := len(shortLineRe.FindAllString(trimmed, -1))
		if short*3 >= len(lines)*2 {
			return types.StrategyHierarchical
		}
	}
	if len(trimmed) > 5000 && s.embedder != nil {
		return types.StrategySemantic
	}
	return types.StrategyRecursive
}

func (s *Service) chunkerFor(strategy types.Strategy, cfg types.ChunkConfig) Chunker {
	key := fmt.Sprintf("%s|%d|%d|%d|%d|%d|%.3f|%t|%d|%s", strategy, cfg.ChunkSize, cfg.ChunkOverlap,
		cfg.MinChunkSize, cfg.MaxChunkSize, cfg.TokenLimit, cfg.SimilarityThreshold, cfg.UseEmbeddings,
		cfg.HierarchyLevels, strings.Join(cfg.Separators, "\x1f"))

	s.mu.RLock()
	ch, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return ch
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.cache[key]; ok {
		return ch
	}
	ch = s.build(strategy, cfg)
	s.cache[key] = ch
	return ch
}

func (s *Service) build(strategy types.Strategy, cfg types.ChunkConfig) Chunker {
	switch strategy {
	case types.StrategyFixedSize:
		return NewFixedSizeChunker(cfg)
	case types.StrategySentence:
		return NewSentenceChunker(cfg)
	case types.StrategyRecursive:
		return NewRecursiveChunker(cfg)
	case types.StrategyMarkdown:
		return NewMarkdownChunker(cfg)
	case types.StrategyCode:
		return NewCodeChunker(cfg)
	case types.StrategySemantic:
		return NewSemanticChunker(cfg, s.embedder)
	case types.StrategyToken:
		return NewTokenChunker(cfg, s.counter)
	case types.StrategyHierarchical:
		return NewHierarchicalChunker(cfg)
	case types.StrategyHybrid:
		return NewHybridChunker(cfg, s.embedder, s.counter)
	case types.StrategyParagraph:
		return NewParagraphChunker(cfg)
	case types.StrategyTopic:
		return NewTopicChunker(cfg)
	case types.StrategySlidingWindow:
		return NewSlidingWindowChunker(cfg)
	case types.StrategyTable:
		return NewTableAwareChunker(cfg)
	case types.StrategyConversation:
		return NewConversationChunker(cfg)
	case types.StrategyJSON:
		return NewJSONChunker(cfg)
	default:
		return NewRecursiveChunker(cfg)
	}
}

func strategyForExtension(ext string) types.Strategy {
	switch ext {
	case ".md", ".markdown":
		return types.StrategyMarkdown
	case ".go", ".py", ".js", ".ts", ".java", ".c", ".cpp", ".rs":
		return types.StrategyCode
	case ".json":
		return types.StrategyJSON
	case ".csv", ".tsv":
		return types.StrategyTable
	default:
		return types.StrategyRecursive
	}
}
