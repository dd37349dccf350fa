package chunker

import (
	"context"
	"strings"

	"github.com/recallhq/recall-mcp/pkg/types"
)

// HierarchicalChunker builds a parent/child tree: a root summary chunk,
// section chunks beneath it, and paragraph chunks beneath sections.
// ParentID and ChildrenIDs link the levels; positions are assigned
// depth-first so traversal order matches document order.
type HierarchicalChunker struct {
	cfg types.ChunkConfig
}

func NewHierarchicalChunker(cfg types.ChunkConfig) *HierarchicalChunker {
	return &HierarchicalChunker{cfg: cfg}
}

func (c *HierarchicalChunker) Strategy() types.Strategy { return types.StrategyHierarchical }

func (c *HierarchicalChunker) Chunk(ctx context.Context, text string, meta map[string]any) ([]types.Chunk, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}

	levels := c.cfg.HierarchyLevels
	if levels <= 0 {
		levels = types.DefaultChunkConfig().HierarchyLevels
	}

	pos := 0
	rootText := trimmed
	if len(rootText) > c.cfg.ChunkSize {
		rootText = strings.TrimSpace(rootText[:runeAlign(rootText, c.cfg.ChunkSize)])
	}
	root := types.NewChunk(types.StrategyHierarchical, rootText, pos, 0, len(trimmed),
		mergeMeta(meta, map[string]any{"level": 0, "is_summary": len(rootText) < len(trimmed)}))
	pos++
	chunks := []types.Chunk{root}
	if levels == 1 {
		return chunks, nil
	}

	// Sections sit between root and paragraph granularity, about twice
	// the leaf chunk size.
	sectionSize := c.cfg.ChunkSize * 2
	for _, sec := range fixedSpans(trimmed, sectionSize, 0, true) {
		secText := strings.TrimSpace(sec.text)
		if secText == "" {
			continue
		}
		secChunk := types.NewChunk(types.StrategyHierarchical, secText, pos, sec.start, sec.end,
			mergeMeta(meta, map[string]any{"level": 1}))
		secChunk.ParentID = root.ID
		secIdx := len(chunks)
		chunks = append(chunks, secChunk)
		chunks[0].ChildrenIDs = append(chunks[0].ChildrenIDs, secChunk.ID)
		pos++
		if levels == 2 {
			continue
		}

		for _, para := range splitParagraphs(sec.text) {
			paraText := strings.TrimSpace(para.text)
			if paraText == "" {
				continue
			}
			leafSpans := []span{para}
			if len(paraText) > c.cfg.ChunkSize {
				leafSpans = shiftSpans(fixedSpans(para.text, c.cfg.ChunkSize, c.cfg.ChunkOverlap, true), para.start)
			}
			for _, leaf := range leafSpans {
				leafText := strings.TrimSpace(leaf.text)
				if leafText == "" {
					continue
				}
				leafChunk := types.NewChunk(types.StrategyHierarchical, leafText, pos,
					sec.start+leaf.start, sec.start+leaf.end,
					mergeMeta(meta, map[string]any{"level": 2}))
				leafChunk.ParentID = secChunk.ID
				chunks = append(chunks, leafChunk)
				chunks[secIdx].ChildrenIDs = append(chunks[secIdx].ChildrenIDs, leafChunk.ID)
				pos++
			}
		}
	}
	return chunks, nil
}
