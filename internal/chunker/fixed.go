package chunker

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/recallhq/recall-mcp/pkg/types"
)

// wordBreakLookback bounds how far back from the window edge the fixed-size
// chunker searches for a space before giving up and splitting mid-word.
const wordBreakLookback = 50

// FixedSizeChunker slides a window of ChunkSize characters over the text,
// preferring to break at the last space inside the lookback window so words
// are not split. The window advances by ChunkSize - ChunkOverlap.
type FixedSizeChunker struct {
	cfg types.ChunkConfig
}

func NewFixedSizeChunker(cfg types.ChunkConfig) *FixedSizeChunker {
	return &FixedSizeChunker{cfg: cfg}
}

func (c *FixedSizeChunker) Strategy() types.Strategy { return types.StrategyFixedSize }

func (c *FixedSizeChunker) Chunk(_ context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	spans := fixedSpans(text, c.cfg.ChunkSize, c.cfg.ChunkOverlap, true)
	return buildChunks(types.StrategyFixedSize, spans, meta), nil
}

// SlidingWindowChunker is the fixed-size variant without word-boundary
// preference: plain windows with a constant stride. Useful when exact window
// geometry matters more than readability, e.g. for dense retrieval over logs.
type SlidingWindowChunker struct {
	cfg types.ChunkConfig
}

func NewSlidingWindowChunker(cfg types.ChunkConfig) *SlidingWindowChunker {
	return &SlidingWindowChunker{cfg: cfg}
}

func (c *SlidingWindowChunker) Strategy() types.Strategy { return types.StrategySlidingWindow }

func (c *SlidingWindowChunker) Chunk(_ context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	spans := fixedSpans(text, c.cfg.ChunkSize, c.cfg.ChunkOverlap, false)
	return buildChunks(types.StrategySlidingWindow, spans, meta), nil
}

// runeAlign retreats i to the nearest rune start so a window edge never
// slices a multi-byte rune in half.
func runeAlign(text string, i int) int {
	for i > 0 && i < len(text) && !utf8.RuneStart(text[i]) {
		i--
	}
	return i
}

// fixedSpans produces window spans of at most size bytes, overlapping by
// overlap bytes. With preferWordBreak the window end retreats to the last
// space within the lookback distance. Window edges are aligned to rune
// boundaries so every span is valid UTF-8.
func fixedSpans(text string, size, overlap int, preferWordBreak bool) []span {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = types.DefaultChunkConfig().ChunkSize
	}
	if overlap >= size {
		overlap = 0
	}

	var spans []span
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			spans = append(spans, span{text: text[start:], start: start, end: len(text)})
			break
		}
		end = runeAlign(text, end)
		if end <= start {
			// A single rune wider than the window still advances.
			_, w := utf8.DecodeRuneInString(text[start:])
			end = start + w
		}

		if preferWordBreak {
			window := text[start:end]
			if idx := strings.LastIndexByte(window, ' '); idx > 0 && len(window)-idx <= wordBreakLookback {
				end = start + idx + 1 // keep the space with the earlier chunk
			}
		}

		spans = append(spans, span{text: text[start:end], start: start, end: end})

		next := runeAlign(text, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}
