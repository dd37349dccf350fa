package chunker

import (
	"context"
	"regexp"
	"strings"

	"github.com/recallhq/recall-mcp/pkg/types"
)

// Per-language top-level construct boundaries. A boundary match starts a
// new chunk so functions and types stay whole where possible.
var codeBoundaries = map[string]*regexp.Regexp{
	"go":         regexp.MustCompile(`(?m)^(func |type |var |const |package |import )`),
	"python":     regexp.MustCompile(`(?m)^(def |class |async def |@)`),
	"javascript": regexp.MustCompile(`(?m)^(function |class |const |let |var |export |async function )`),
}

// CodeChunker splits source code at declaration boundaries for known
// languages and by line groups otherwise.
type CodeChunker struct {
	cfg types.ChunkConfig
}

func NewCodeChunker(cfg types.ChunkConfig) *CodeChunker {
	return &CodeChunker{cfg: cfg}
}

func (c *CodeChunker) Strategy() types.Strategy { return types.StrategyCode }

func (c *CodeChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	lang := detectLanguage(text, meta)
	codeMeta := mergeMeta(meta, map[string]any{"language": lang})

	var spans []span
	if re, ok := codeBoundaries[lang]; ok {
		spans = c.declarationSpans(text, re)
	}
	if len(spans) == 0 {
		spans = c.lineSpans(text)
	}
	return buildChunks(types.StrategyCode, spans, codeMeta), nil
}

// declarationSpans cuts at declaration starts, packing consecutive
// declarations until the size cap and splitting oversized ones by line.
func (c *CodeChunker) declarationSpans(text string, re *regexp.Regexp) []span {
	locs := re.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	var units []span
	if locs[0][0] > 0 {
		units = append(units, span{text: text[:locs[0][0]], start: 0, end: locs[0][0]})
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		units = append(units, span{text: text[loc[0]:end], start: loc[0], end: end})
	}

	var out []span
	var group []span
	groupLen := 0
	flush := func() {
		if len(group) == 0 {
			return
		}
		joined := joinSpans(group)
		if len(joined.text) <= c.cfg.ChunkSize || len(group) == 1 && c.oversizedOK(joined) {
			out = append(out, joined)
		} else if len(group) == 1 {
			out = append(out, shiftSpans(c.lineSpansOf(joined.text), joined.start)...)
		} else {
			out = append(out, joined)
		}
		group = nil
		groupLen = 0
	}
	for _, u := range units {
		if groupLen > 0 && groupLen+len(u.text) > c.cfg.ChunkSize {
			flush()
		}
		if len(u.text) > c.cfg.ChunkSize {
			flush()
			out = append(out, shiftSpans(c.lineSpansOf(u.text), u.start)...)
			continue
		}
		group = append(group, u)
		groupLen += len(u.text)
	}
	flush()
	return out
}

// oversizedOK permits a single declaration modestly over the cap to stay
// whole rather than be split mid-body.
func (c *CodeChunker) oversizedOK(sp span) bool {
	max := c.cfg.MaxChunkSize
	if max <= 0 {
		max = c.cfg.ChunkSize * 2
	}
	return len(sp.text) <= max
}

// lineSpans groups whole lines up to the size cap with a small trailing
// line overlap between consecutive chunks.
func (c *CodeChunker) lineSpans(text string) []span {
	return c.lineSpansOf(text)
}

func (c *CodeChunker) lineSpansOf(text string) []span {
	var lines []span
	start := 0
	for start < len(text) {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			lines = append(lines, span{text: text[start:], start: start, end: len(text)})
			break
		}
		end := start + nl + 1
		lines = append(lines, span{text: text[start:end], start: start, end: end})
		start = end
	}
	if len(lines) == 0 {
		return nil
	}

	var out []span
	i := 0
	for i < len(lines) {
		groupLen := 0
		j := i
		for j < len(lines) && (j == i || groupLen+len(lines[j].text) <= c.cfg.ChunkSize) {
			groupLen += len(lines[j].text)
			j++
		}
		out = append(out, joinSpans(lines[i:j]))
		if j >= len(lines) {
			break
		}
		// Step back within the overlap budget so chunks share context lines.
		next := j
		budget := c.cfg.ChunkOverlap
		for next > i+1 && budget >= len(lines[next-1].text) {
			budget -= len(lines[next-1].text)
			next--
		}
		i = next
	}
	return out
}

// detectLanguage inspects metadata hints first, then source heuristics.
func detectLanguage(text string, meta map[string]any) string {
	if meta != nil {
		if lang, ok := meta["language"].(string); ok && lang != "" {
			return strings.ToLower(lang)
		}
		if ext, ok := meta["file_extension"].(string); ok {
			switch strings.ToLower(ext) {
			case ".go":
				return "go"
			case ".py":
				return "python"
			case ".js", ".ts", ".jsx", ".tsx":
				return "javascript"
			}
		}
	}
	switch {
	case strings.Contains(text, "package ") && strings.Contains(text, "func "):
		return "go"
	case strings.Contains(text, "def ") && strings.Contains(text, ":"):
		return "python"
	case strings.Contains(text, "function ") || strings.Contains(text, "=>") || strings.Contains(text, "const "):
		return "javascript"
	}
	return "unknown"
}
