package chunker

import (
	"context"
	"strings"

	"github.com/recallhq/recall-mcp/pkg/types"
)

// RecursiveChunker tries separators in priority order. Each separator splits
// the text; any piece still exceeding the size cap is re-split with the
// remaining separators, bottoming out in a fixed-size split when no
// separator fits. A post-pass merges adjacent undersized chunks so the
// output avoids pathological tiny trailing chunks.
type RecursiveChunker struct {
	cfg types.ChunkConfig
}

func NewRecursiveChunker(cfg types.ChunkConfig) *RecursiveChunker {
	return &RecursiveChunker{cfg: cfg}
}

func (c *RecursiveChunker) Strategy() types.Strategy { return types.StrategyRecursive }

func (c *RecursiveChunker) Chunk(_ context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	spans := c.Spans(text)
	return buildChunks(types.StrategyRecursive, spans, meta), nil
}

// Spans exposes the recursive split for chunkers that layer on top of it
// (markdown sections, hierarchy levels, hybrid fallback).
func (c *RecursiveChunker) Spans(text string) []span {
	if text == "" {
		return nil
	}
	seps := c.cfg.Separators
	if len(seps) == 0 {
		seps = types.DefaultChunkConfig().Separators
	}
	pieces := c.split(span{text: text, start: 0, end: len(text)}, seps)
	grouped := groupPieces(pieces, c.cfg.ChunkSize)
	return mergeSmall(grouped, c.cfg.MinChunkSize, c.cfg.ChunkSize)
}

func (c *RecursiveChunker) split(sp span, seps []string) []span {
	size := c.cfg.ChunkSize
	if len(sp.text) <= size {
		return []span{sp}
	}
	if len(seps) == 0 || seps[0] == "" {
		return shiftSpans(fixedSpans(sp.text, size, c.cfg.ChunkOverlap, true), sp.start)
	}

	parts := splitKeepingSeparator(sp, seps[0])
	if len(parts) == 1 {
		// Separator absent; fall through to the next one.
		return c.split(sp, seps[1:])
	}

	var out []span
	for _, part := range parts {
		if len(part.text) > size {
			out = append(out, c.split(part, seps[1:])...)
		} else {
			out = append(out, part)
		}
	}
	return out
}

// splitKeepingSeparator splits sp.text on sep, attaching each separator to
// the piece it terminates so the pieces cover sp exactly.
func splitKeepingSeparator(sp span, sep string) []span {
	var parts []span
	rel := 0
	for {
		idx := strings.Index(sp.text[rel:], sep)
		if idx < 0 {
			break
		}
		end := rel + idx + len(sep)
		parts = append(parts, span{
			text:  sp.text[rel:end],
			start: sp.start + rel,
			end:   sp.start + end,
		})
		rel = end
	}
	if rel < len(sp.text) {
		parts = append(parts, span{
			text:  sp.text[rel:],
			start: sp.start + rel,
			end:   sp.end,
		})
	}
	return parts
}

// groupPieces greedily packs consecutive pieces into spans of at most size.
func groupPieces(pieces []span, size int) []span {
	if len(pieces) == 0 {
		return nil
	}
	var out []span
	var group []span
	groupLen := 0
	for _, p := range pieces {
		if len(group) > 0 && groupLen+len(p.text) > size {
			out = append(out, joinSpans(group))
			group = group[:0]
			groupLen = 0
		}
		group = append(group, p)
		groupLen += len(p.text)
	}
	if len(group) > 0 {
		out = append(out, joinSpans(group))
	}
	return out
}

// mergeSmall merges a chunk smaller than minSize into its neighbor when the
// combined span still fits the size cap.
func mergeSmall(spans []span, minSize, size int) []span {
	if minSize <= 0 || len(spans) < 2 {
		return spans
	}
	out := make([]span, 0, len(spans))
	for _, sp := range spans {
		if len(out) > 0 {
			prev := out[len(out)-1]
			if (len(strings.TrimSpace(sp.text)) < minSize || len(strings.TrimSpace(prev.text)) < minSize) &&
				len(prev.text)+len(sp.text) <= size {
				out[len(out)-1] = joinSpans([]span{prev, sp})
				continue
			}
		}
		out = append(out, sp)
	}
	return out
}

// shiftSpans rebases relative spans onto an absolute offset.
func shiftSpans(spans []span, offset int) []span {
	for i := range spans {
		spans[i].start += offset
		spans[i].end += offset
	}
	return spans
}
