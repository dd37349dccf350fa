package chunker

import (
	"context"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/recallhq/recall-mcp/pkg/types"
)

// TokenCounter reports how many model tokens a string consumes.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (t *tiktokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// heuristicCounter approximates tokens as len/4, the usual ratio for
// English prose under BPE encodings.
type heuristicCounter struct{}

func (heuristicCounter) Count(text string) int {
	n := (len(text) + 3) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// NewTokenCounter probes for the cl100k_base encoding once at
// construction and falls back to a character heuristic when the
// encoding data is unavailable.
func NewTokenCounter() TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil || enc == nil {
		return heuristicCounter{}
	}
	return &tiktokenCounter{enc: enc}
}

// TokenChunker packs sentences into chunks bounded by a token budget
// instead of a character budget.
type TokenChunker struct {
	cfg     types.ChunkConfig
	counter TokenCounter
}

func NewTokenChunker(cfg types.ChunkConfig, counter TokenCounter) *TokenChunker {
	if counter == nil {
		counter = NewTokenCounter()
	}
	return &TokenChunker{cfg: cfg, counter: counter}
}

func (c *TokenChunker) Strategy() types.Strategy { return types.StrategyToken }

func (c *TokenChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}
	limit := c.cfg.TokenLimit
	if limit <= 0 {
		limit = types.DefaultChunkConfig().TokenLimit
	}

	var spans []span
	var group []span
	groupTokens := 0
	for _, s := range sentences {
		tokens := c.counter.Count(strings.TrimSpace(s.text))
		if tokens > limit {
			// A single sentence over budget is split at the character
			// level approximated from the token ratio.
			if len(group) > 0 {
				spans = append(spans, joinSpans(group))
				group = nil
				groupTokens = 0
			}
			approxChars := len(s.text) * limit / tokens
			if approxChars < 1 {
				approxChars = 1
			}
			for _, sub := range fixedSpans(s.text, approxChars, 0, true) {
				spans = append(spans, span{text: sub.text, start: s.start + sub.start, end: s.start + sub.end})
			}
			continue
		}
		if len(group) > 0 && groupTokens+tokens > limit {
			spans = append(spans, joinSpans(group))
			group = nil
			groupTokens = 0
		}
		group = append(group, s)
		groupTokens += tokens
	}
	if len(group) > 0 {
		spans = append(spans, joinSpans(group))
	}

	chunks := buildChunks(types.StrategyToken, spans, meta)
	for i := range chunks {
		chunks[i].Metadata["token_count"] = c.counter.Count(chunks[i].Text)
	}
	return chunks, nil
}
