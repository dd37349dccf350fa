package chunker

import (
	"context"
	"regexp"
	"strings"

	"github.com/recallhq/recall-mcp/pkg/types"
)

var (
	markdownHintRe = regexp.MustCompile(`(?m)^(#{1,6} |[-*] |\d+\. |> )`)
	codeHintRe     = regexp.MustCompile(`(?m)^(func |def |class |import |package |const |var |public |private )`)
)

// HybridChunker inspects the text, guesses its content type, and
// dispatches to the strategy suited for it. The detected type is
// recorded in chunk metadata.
type HybridChunker struct {
	cfg      types.ChunkConfig
	embedder SentenceEmbedder
	counter  TokenCounter
}

func NewHybridChunker(cfg types.ChunkConfig, embedder SentenceEmbedder, counter TokenCounter) *HybridChunker {
	return &HybridChunker{cfg: cfg, embedder: embedder, counter: counter}
}

func (c *HybridChunker) Strategy() types.Strategy { return types.StrategyHybrid }

func (c *HybridChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	contentType := DetectContentType(text)
	hybridMeta := mergeMeta(meta, map[string]any{"content_type": contentType})

	var inner Chunker
	switch contentType {
	case "markdown":
		inner = NewMarkdownChunker(c.cfg)
	case "code":
		inner = NewCodeChunker(c.cfg)
	case "json":
		inner = NewJSONChunker(c.cfg)
	case "conversation":
		inner = NewConversationChunker(c.cfg)
	case "table":
		inner = NewTableAwareChunker(c.cfg)
	default:
		if c.embedder != nil && c.cfg.UseEmbeddings && len(text) > c.cfg.ChunkSize {
			inner = NewSemanticChunker(c.cfg, c.embedder)
		} else {
			inner = NewRecursiveChunker(c.cfg)
		}
	}

	chunks, err := inner.Chunk(ctx, text, hybridMeta)
	if err != nil {
		return NewRecursiveChunker(c.cfg).Chunk(ctx, text, hybridMeta)
	}
	return chunks, nil
}

// DetectContentType classifies text as markdown, code, json,
// conversation, table, or plain prose.
func DetectContentType(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "text"
	}
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		if validJSON(trimmed) {
			return "json"
		}
	}
	lines := strings.Split(trimmed, "\n")
	total := len(lines)

	speakerLines := 0
	tableLines := 0
	mdLines := 0
	codeLines := 0
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if l == "" {
			continue
		}
		if speakerRe.MatchString(l) {
			speakerLines++
		}
		if strings.HasPrefix(l, "|") && strings.Count(l, "|") >= 2 {
			tableLines++
		}
		if markdownHintRe.MatchString(l) {
			mdLines++
		}
		if codeHintRe.MatchString(l) {
			codeLines++
		}
	}
	switch {
	case total >= 2 && speakerLines*2 >= total:
		return "conversation"
	case tableLines >= 2:
		return "table"
	case codeLines >= 2 || strings.Contains(trimmed, "```"):
		if strings.Contains(trimmed, "```") && mdLines > 0 {
			return "markdown"
		}
		if codeLines >= 2 {
			return "code"
		}
		return "markdown"
	case mdLines >= 2 || strings.HasPrefix(trimmed, "# "):
		return "markdown"
	}
	return "text"
}
