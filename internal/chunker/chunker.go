package chunker

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/recallhq/recall-mcp/pkg/types"
)

// Chunker splits raw text into an ordered chunk sequence. Implementations
// must tolerate malformed input: they degrade to a simpler split rather than
// returning an error for bad content. Errors are reserved for genuinely
// unusable configuration or dependency failures, and the Service converts
// them into a recursive fallback.
type Chunker interface {
	Chunk(ctx context.Context, text string, meta map[string]any) ([]types.Chunk, error)
	Strategy() types.Strategy
}

// span is a slice of the original input with its byte offsets. Trailing
// separator whitespace belongs to the preceding span so that consecutive
// spans cover the input without gaps.
type span struct {
	text  string
	start int
	end   int
}

// sentenceTerminators end a sentence when followed by whitespace and an
// upper-case continuation. CJK terminators end a sentence unconditionally.
var cjkTerminators = map[rune]bool{'。': true, '！': true, '？': true}

func isSentenceTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || cjkTerminators[r]
}

// splitSentences splits text into sentence spans. A boundary is placed after
// sentence-ending punctuation when the next non-space rune starts a new
// sentence (upper-case letter, digit, or opening quote), or unconditionally
// after a CJK terminator. The whitespace following the punctuation is
// attached to the earlier sentence so spans cover the whole input.
func splitSentences(text string) []span {
	if text == "" {
		return nil
	}

	var spans []span
	start := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isSentenceTerminator(r) {
			i += size
			continue
		}

		end := i + size
		if cjkTerminators[r] {
			end += consumeSpace(text[end:])
			spans = append(spans, span{text: text[start:end], start: start, end: end})
			start, i = end, end
			continue
		}

		// Latin terminator: require whitespace then an upper-case
		// continuation (or end of input) to call it a boundary.
		ws := consumeSpace(text[end:])
		rest := text[end+ws:]
		if ws == 0 && rest != "" {
			i += size
			continue
		}
		if rest != "" {
			next, _ := utf8.DecodeRuneInString(rest)
			if !unicode.IsUpper(next) && !unicode.IsDigit(next) && next != '"' && next != '\'' {
				i += size
				continue
			}
		}
		end += ws
		spans = append(spans, span{text: text[start:end], start: start, end: end})
		start, i = end, end
	}

	if start < len(text) {
		spans = append(spans, span{text: text[start:], start: start, end: len(text)})
	}
	return spans
}

// consumeSpace returns the byte length of the leading whitespace run.
func consumeSpace(s string) int {
	n := 0
	for n < len(s) {
		r, size := utf8.DecodeRuneInString(s[n:])
		if !unicode.IsSpace(r) {
			break
		}
		n += size
	}
	return n
}

// splitParagraphs splits on blank lines, attaching the separator to the
// preceding paragraph.
func splitParagraphs(text string) []span {
	if text == "" {
		return nil
	}

	var spans []span
	start := 0
	for {
		idx := strings.Index(text[start:], "\n\n")
		if idx < 0 {
			break
		}
		end := start + idx + 2
		end += consumeSpace(text[end:])
		spans = append(spans, span{text: text[start:end], start: start, end: end})
		start = end
		if start >= len(text) {
			return spans
		}
	}
	spans = append(spans, span{text: text[start:], start: start, end: len(text)})
	return spans
}

// buildChunks converts spans into chunks with contiguous positions, merging
// shared metadata into each. Spans whose trimmed text is empty are skipped
// without consuming a position.
func buildChunks(strategy types.Strategy, spans []span, meta map[string]any) []types.Chunk {
	chunks := make([]types.Chunk, 0, len(spans))
	pos := 0
	for _, sp := range spans {
		trimmed := strings.TrimSpace(sp.text)
		if trimmed == "" {
			continue
		}
		chunks = append(chunks, types.NewChunk(strategy, trimmed, pos, sp.start, sp.end, meta))
		pos++
	}
	return chunks
}

// mergeMeta combines base metadata with chunker-specific additions without
// mutating either input.
func mergeMeta(base map[string]any, extra map[string]any) map[string]any {
	if len(extra) == 0 {
		return base
	}
	merged := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
