package chunker

import (
	"context"
	"strings"

	"github.com/recallhq/recall-mcp/pkg/types"
)

// SentenceChunker accumulates whole sentences until the next sentence would
// reach the size cap, then flushes. Overlap keeps trailing sentences within
// the configured character budget at the start of the next chunk for context
// continuity.
type SentenceChunker struct {
	cfg types.ChunkConfig
}

func NewSentenceChunker(cfg types.ChunkConfig) *SentenceChunker {
	return &SentenceChunker{cfg: cfg}
}

func (c *SentenceChunker) Strategy() types.Strategy { return types.StrategySentence }

func (c *SentenceChunker) Chunk(_ context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	sentences := splitSentences(text)
	spans := accumulateSpans(sentences, c.cfg.ChunkSize, c.cfg.ChunkOverlap)
	return buildChunks(types.StrategySentence, spans, meta), nil
}

// accumulateSpans groups unit spans into chunk spans of at most size bytes.
// A group is flushed before adding a unit that would bring it to the cap;
// on flush, trailing units within the overlap budget seed the next group.
func accumulateSpans(units []span, size, overlap int) []span {
	if len(units) == 0 {
		return nil
	}
	if size <= 0 {
		size = types.DefaultChunkConfig().ChunkSize
	}

	var out []span
	var group []span
	groupLen := 0

	flush := func() {
		if len(group) == 0 {
			return
		}
		out = append(out, joinSpans(group))
		carried := trailingWithinBudget(group, overlap)
		group = append([]span(nil), carried...)
		groupLen = 0
		for _, sp := range group {
			groupLen += len(sp.text)
		}
	}

	for _, u := range units {
		// Cost of a unit includes the separator that follows it, so a
		// sentence with its trailing space and a final sentence without one
		// are measured alike.
		cost := len(u.text)
		if !strings.HasSuffix(u.text, " ") && !strings.HasSuffix(u.text, "\n") {
			cost++
		}
		if len(group) > 0 && groupLen+cost >= size {
			flush()
			// Overlap carry-over alone may already be at the cap; drop it
			// rather than emitting a chunk that exceeds the size.
			if groupLen+cost >= size {
				group = group[:0]
				groupLen = 0
			}
		}
		group = append(group, u)
		groupLen += len(u.text)
	}
	if len(group) > 0 {
		// Only emit if the tail adds new content beyond the carried overlap.
		tail := joinSpans(group)
		if len(out) == 0 || tail.end > out[len(out)-1].end {
			out = append(out, tail)
		}
	}
	return out
}

// joinSpans merges contiguous-or-overlapping unit spans into one span built
// from their texts.
func joinSpans(group []span) span {
	if len(group) == 1 {
		return group[0]
	}
	var b strings.Builder
	for _, sp := range group {
		b.WriteString(sp.text)
	}
	return span{text: b.String(), start: group[0].start, end: group[len(group)-1].end}
}

// trailingWithinBudget returns the longest suffix of group whose combined
// length stays within the overlap budget. The whole group is never carried:
// at least the first unit always stays behind so the loop makes progress.
func trailingWithinBudget(group []span, budget int) []span {
	if budget <= 0 || len(group) < 2 {
		return nil
	}
	total := 0
	i := len(group)
	for i > 1 {
		if total+len(group[i-1].text) > budget {
			break
		}
		total += len(group[i-1].text)
		i--
	}
	return group[i:]
}
