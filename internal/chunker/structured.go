package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/recallhq/recall-mcp/pkg/types"
)

var speakerRe = regexp.MustCompile(`^(\[?[A-Za-z][A-Za-z0-9 _.-]{0,40}\]?|user|assistant|system|human|ai):\s`)

var topicTransitions = []string{
	"however", "meanwhile", "in contrast", "on the other hand",
	"furthermore", "moving on", "next", "finally", "in conclusion",
	"additionally", "separately", "turning to",
}

// ParagraphChunker packs whole paragraphs up to the size cap and starts
// a fresh chunk early when a paragraph opens with a topic-transition
// phrase.
type ParagraphChunker struct {
	cfg types.ChunkConfig
}

func NewParagraphChunker(cfg types.ChunkConfig) *ParagraphChunker {
	return &ParagraphChunker{cfg: cfg}
}

func (c *ParagraphChunker) Strategy() types.Strategy { return types.StrategyParagraph }

func (c *ParagraphChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	paras := splitParagraphs(text)
	if len(paras) == 0 {
		return nil, nil
	}

	var spans []span
	var group []span
	groupLen := 0
	flush := func() {
		if len(group) > 0 {
			spans = append(spans, joinSpans(group))
			group = nil
			groupLen = 0
		}
	}
	for _, p := range paras {
		if startsTopicTransition(p.text) || (groupLen > 0 && groupLen+len(p.text) > c.cfg.ChunkSize) {
			flush()
		}
		if len(p.text) > c.cfg.ChunkSize {
			flush()
			spans = append(spans, shiftSpans(fixedSpans(p.text, c.cfg.ChunkSize, c.cfg.ChunkOverlap, true), p.start)...)
			continue
		}
		group = append(group, p)
		groupLen += len(p.text)
	}
	flush()
	return buildChunks(types.StrategyParagraph, spans, meta), nil
}

func startsTopicTransition(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, t := range topicTransitions {
		if strings.HasPrefix(lower, t) {
			return true
		}
	}
	return false
}

// TopicChunker cuts between paragraphs when their word overlap drops
// below the similarity threshold, grouping consecutive paragraphs that
// share vocabulary.
type TopicChunker struct {
	cfg types.ChunkConfig
}

func NewTopicChunker(cfg types.ChunkConfig) *TopicChunker {
	return &TopicChunker{cfg: cfg}
}

func (c *TopicChunker) Strategy() types.Strategy { return types.StrategyTopic }

func (c *TopicChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	paras := splitParagraphs(text)
	if len(paras) == 0 {
		return nil, nil
	}
	threshold := c.cfg.SimilarityThreshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.2
	} else if threshold > 0.5 {
		// Jaccard overlaps run much lower than embedding cosines.
		threshold = threshold / 3
	}

	var spans []span
	group := []span{paras[0]}
	groupLen := len(paras[0].text)
	prevWords := wordSet(paras[0].text)
	for i := 1; i < len(paras); i++ {
		words := wordSet(paras[i].text)
		sim := jaccard(prevWords, words)
		if sim < threshold || groupLen+len(paras[i].text) > c.cfg.ChunkSize {
			spans = append(spans, joinSpans(group))
			group = group[:0]
			groupLen = 0
		}
		group = append(group, paras[i])
		groupLen += len(paras[i].text)
		prevWords = words
	}
	if len(group) > 0 {
		spans = append(spans, joinSpans(group))
	}
	return buildChunks(types.StrategyTopic, spans, meta), nil
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?()[]{}\"'")
		if len(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// TableAwareChunker keeps pipe-delimited tables intact as single chunks
// and splits the surrounding prose recursively. Chunks holding a table
// carry a contains_table metadata flag.
type TableAwareChunker struct {
	cfg types.ChunkConfig
}

func NewTableAwareChunker(cfg types.ChunkConfig) *TableAwareChunker {
	return &TableAwareChunker{cfg: cfg}
}

func (c *TableAwareChunker) Strategy() types.Strategy { return types.StrategyTable }

func (c *TableAwareChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	blocks := splitTableBlocks(text)
	recursive := NewRecursiveChunker(c.cfg)
	var chunks []types.Chunk
	pos := 0
	for _, b := range blocks {
		trimmed := strings.TrimSpace(b.text)
		if trimmed == "" {
			continue
		}
		if b.isTable {
			ch := types.NewChunk(types.StrategyTable, trimmed, pos, b.start, b.end,
				mergeMeta(meta, map[string]any{"contains_table": true}))
			chunks = append(chunks, ch)
			pos++
			continue
		}
		for _, sp := range recursive.Spans(b.text) {
			spText := strings.TrimSpace(sp.text)
			if spText == "" {
				continue
			}
			ch := types.NewChunk(types.StrategyTable, spText, pos, b.start+sp.start, b.start+sp.end, meta)
			chunks = append(chunks, ch)
			pos++
		}
	}
	return chunks, nil
}

type textBlock struct {
	text    string
	start   int
	end     int
	isTable bool
}

// splitTableBlocks separates runs of table lines (lines beginning with
// "|") from the prose around them, preserving byte offsets.
func splitTableBlocks(text string) []textBlock {
	var blocks []textBlock
	lineStart := 0
	blockStart := 0
	inTable := false
	flush := func(end int) {
		if end > blockStart {
			blocks = append(blocks, textBlock{text: text[blockStart:end], start: blockStart, end: end, isTable: inTable})
			blockStart = end
		}
	}
	for lineStart <= len(text) {
		lineEnd := len(text)
		if nl := strings.IndexByte(text[lineStart:], '\n'); nl >= 0 {
			lineEnd = lineStart + nl + 1
		}
		if lineStart == len(text) {
			break
		}
		line := strings.TrimSpace(text[lineStart:lineEnd])
		lineIsTable := strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
		if lineIsTable != inTable && line != "" {
			flush(lineStart)
			inTable = lineIsTable
		}
		lineStart = lineEnd
	}
	flush(len(text))
	return blocks
}

// ConversationChunker groups chat transcripts by turn. A turn starts at
// a speaker-prefixed line ("alice: ...") and runs until the next
// speaker line; turns are never split across chunks.
type ConversationChunker struct {
	cfg types.ChunkConfig
}

func NewConversationChunker(cfg types.ChunkConfig) *ConversationChunker {
	return &ConversationChunker{cfg: cfg}
}

func (c *ConversationChunker) Strategy() types.Strategy { return types.StrategyConversation }

func (c *ConversationChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	turns := splitTurns(text)
	if len(turns) == 0 {
		return NewParagraphChunker(c.cfg).Chunk(ctx, text, meta)
	}

	var chunks []types.Chunk
	pos := 0
	var group []span
	var speakers []string
	groupLen := 0
	flush := func() {
		if len(group) == 0 {
			return
		}
		joined := joinSpans(group)
		trimmed := strings.TrimSpace(joined.text)
		if trimmed != "" {
			ch := types.NewChunk(types.StrategyConversation, trimmed, pos, joined.start, joined.end,
				mergeMeta(meta, map[string]any{"speakers": uniqueSorted(speakers), "turn_count": len(group)}))
			chunks = append(chunks, ch)
			pos++
		}
		group = nil
		speakers = nil
		groupLen = 0
	}
	for _, t := range turns {
		if groupLen > 0 && groupLen+len(t.span.text) > c.cfg.ChunkSize {
			flush()
		}
		group = append(group, t.span)
		if t.speaker != "" {
			speakers = append(speakers, t.speaker)
		}
		groupLen += len(t.span.text)
	}
	flush()
	return chunks, nil
}

type turn struct {
	span    span
	speaker string
}

func splitTurns(text string) []turn {
	var turns []turn
	lineStart := 0
	turnStart := -1
	speaker := ""
	saw := false
	flush := func(end int) {
		if turnStart >= 0 && end > turnStart {
			turns = append(turns, turn{span: span{text: text[turnStart:end], start: turnStart, end: end}, speaker: speaker})
		}
	}
	for lineStart < len(text) {
		lineEnd := len(text)
		if nl := strings.IndexByte(text[lineStart:], '\n'); nl >= 0 {
			lineEnd = lineStart + nl + 1
		}
		line := strings.TrimSpace(text[lineStart:lineEnd])
		if m := speakerRe.FindStringSubmatch(line + " "); m != nil && strings.Contains(line, ":") {
			saw = true
			flush(lineStart)
			turnStart = lineStart
			speaker = strings.Trim(strings.TrimSuffix(strings.SplitN(line, ":", 2)[0], ":"), "[] ")
		} else if turnStart < 0 {
			turnStart = lineStart
			speaker = ""
		}
		lineStart = lineEnd
	}
	flush(len(text))
	if !saw {
		return nil
	}
	return turns
}

func uniqueSorted(in []string) []string {
	set := make(map[string]struct{}, len(in))
	for _, s := range in {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// JSONChunker parses the input and emits one chunk per top-level array
// element or object key. Invalid JSON degrades to a recursive split.
type JSONChunker struct {
	cfg types.ChunkConfig
}

func NewJSONChunker(cfg types.ChunkConfig) *JSONChunker {
	return &JSONChunker{cfg: cfg}
}

func (c *JSONChunker) Strategy() types.Strategy { return types.StrategyJSON }

func (c *JSONChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return NewRecursiveChunker(c.cfg).Chunk(ctx, text, meta)
	}

	var chunks []types.Chunk
	pos := 0
	emit := func(body, anchor string, extra map[string]any) {
		if strings.TrimSpace(body) == "" {
			return
		}
		// Re-marshaled elements rarely match the source bytes, so fall
		// back to anchoring on the element's key and flag the offsets.
		start := strings.Index(text, body)
		end := len(text)
		if start >= 0 {
			end = start + len(body)
		} else {
			start = 0
			if anchor != "" {
				if idx := strings.Index(text, anchor); idx >= 0 {
					start = idx
				}
			}
			extra = mergeMeta(extra, map[string]any{"offsets_approximate": true})
		}
		ch := types.NewChunk(types.StrategyJSON, body, pos, start, end, mergeMeta(meta, extra))
		chunks = append(chunks, ch)
		pos++
	}

	switch v := parsed.(type) {
	case []any:
		for i, el := range v {
			body, err := json.MarshalIndent(el, "", "  ")
			if err != nil {
				continue
			}
			emit(string(body), "", map[string]any{"json_path": fmt.Sprintf("[%d]", i)})
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			body, err := json.MarshalIndent(map[string]any{k: v[k]}, "", "  ")
			if err != nil {
				continue
			}
			emit(string(body), fmt.Sprintf("%q", k), map[string]any{"json_path": k})
		}
	default:
		emit(trimmed, "", nil)
	}

	if len(chunks) == 0 {
		return NewRecursiveChunker(c.cfg).Chunk(ctx, text, meta)
	}
	return chunks, nil
}

func validJSON(text string) bool {
	return json.Valid([]byte(text))
}
