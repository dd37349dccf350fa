package chunker

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/recallhq/recall-mcp/pkg/types"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```.*?(```|$)")
	headingRe     = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+)$`)
	placeholderRe = regexp.MustCompile("\x00FENCE(\\d+)\x00")
)

// MarkdownChunker splits a document into sections by heading. Fenced code
// blocks are swapped for placeholders before heading detection so a "#"
// inside a code fence never starts a section, then restored afterwards.
// Sections exceeding the size cap are subdivided recursively with the
// heading text kept as a contextual prefix.
type MarkdownChunker struct {
	cfg types.ChunkConfig
}

func NewMarkdownChunker(cfg types.ChunkConfig) *MarkdownChunker {
	return &MarkdownChunker{cfg: cfg}
}

func (c *MarkdownChunker) Strategy() types.Strategy { return types.StrategyMarkdown }

func (c *MarkdownChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	protected, fences := protectFences(text)
	sections := splitSections(protected)
	if len(sections) == 0 {
		// No headings at all; degrade to a recursive split.
		return NewRecursiveChunker(c.cfg).Chunk(ctx, text, meta)
	}

	recursive := NewRecursiveChunker(c.cfg)
	var chunks []types.Chunk
	pos := 0
	cursor := 0
	for _, sec := range sections {
		body := restoreFences(sec.text, fences)
		trimmed := strings.TrimSpace(body)
		if trimmed == "" {
			continue
		}

		// Offsets are re-derived against the original text because fence
		// placeholders shift positions.
		start := strings.Index(text[cursor:], trimmed)
		if start >= 0 {
			start += cursor
			cursor = start + len(trimmed)
		} else {
			start = cursor
		}

		secMeta := meta
		if sec.title != "" {
			secMeta = mergeMeta(meta, map[string]any{
				"section_title": sec.title,
				"header_level":  sec.level,
			})
		}

		if len(trimmed) <= c.cfg.ChunkSize {
			ch := types.NewChunk(types.StrategyMarkdown, trimmed, pos, start, start+len(trimmed), secMeta)
			chunks = append(chunks, ch)
			pos++
			continue
		}

		// Oversized section: subdivide and keep the heading as context.
		prefix := ""
		if sec.title != "" {
			prefix = strings.Repeat("#", sec.level) + " " + sec.title + "\n\n"
		}
		for _, sub := range recursive.Spans(trimmed) {
			subText := strings.TrimSpace(sub.text)
			if subText == "" {
				continue
			}
			if prefix != "" && !strings.HasPrefix(subText, strings.Repeat("#", sec.level)+" ") {
				subText = prefix + subText
			}
			ch := types.NewChunk(types.StrategyMarkdown, subText, pos, start+sub.start, start+sub.end, secMeta)
			chunks = append(chunks, ch)
			pos++
		}
	}

	if len(chunks) == 0 {
		return NewRecursiveChunker(c.cfg).Chunk(ctx, text, meta)
	}
	return chunks, nil
}

type mdSection struct {
	title string
	level int
	text  string
}

// protectFences replaces fenced code blocks with numbered placeholders.
func protectFences(text string) (string, []string) {
	var fences []string
	protected := fencedBlockRe.ReplaceAllStringFunc(text, func(block string) string {
		fences = append(fences, block)
		return fmt.Sprintf("\x00FENCE%d\x00", len(fences)-1)
	})
	return protected, fences
}

// restoreFences substitutes the original fenced blocks back in.
func restoreFences(text string, fences []string) string {
	if len(fences) == 0 {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(ph string) string {
		var idx int
		if _, err := fmt.Sscanf(ph, "\x00FENCE%d\x00", &idx); err != nil || idx >= len(fences) {
			return ph
		}
		return fences[idx]
	})
}

// splitSections cuts the protected text at headings. Content before the
// first heading becomes an untitled preamble section.
func splitSections(text string) []mdSection {
	matches := headingRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	var sections []mdSection
	if pre := text[:matches[0][0]]; strings.TrimSpace(pre) != "" {
		sections = append(sections, mdSection{text: pre})
	}
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections = append(sections, mdSection{
			title: strings.TrimSpace(text[m[4]:m[5]]),
			level: m[3] - m[2],
			text:  text[m[0]:end],
		})
	}
	return sections
}
