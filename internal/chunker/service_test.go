package chunker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall-mcp/pkg/types"
)

func newTestService() *Service {
	return NewService(zerolog.Nop(), nil)
}

func TestServiceUnknownStrategyFallsBack(t *testing.T) {
	svc := newTestService()
	chunks, err := svc.ChunkText(context.Background(), "Some plain text to split.", "bogus", testConfig(100, 0), nil)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, string(types.StrategyRecursive), chunks[0].Metadata["strategy"])
}

func TestServiceInvalidConfigUsesDefaults(t *testing.T) {
	svc := newTestService()
	cfg := types.ChunkConfig{ChunkSize: -5}
	chunks, err := svc.ChunkText(context.Background(), "Text with a broken config.", "sentence", cfg, nil)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
}

func TestServiceEmptyTextYieldsNothing(t *testing.T) {
	svc := newTestService()
	chunks, err := svc.ChunkText(context.Background(), "   \n\t ", "recursive", testConfig(100, 0), nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestServiceAutoStrategyDetectsContent(t *testing.T) {
	svc := newTestService()
	code := "func main() {\n\tprintln(1)\n}\nfunc helper() {\n\treturn\n}\n"
	chunks, err := svc.ChunkText(context.Background(), code, "auto", testConfig(200, 0), nil)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, string(types.StrategyCode), chunks[0].Metadata["strategy"])
}

func TestServicePositionsMonotonic(t *testing.T) {
	svc := newTestService()
	text := strings.Repeat("A sentence here. ", 50)
	chunks, err := svc.ChunkText(context.Background(), text, "sentence", testConfig(80, 0), nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		assert.Less(t, chunks[i-1].Position, chunks[i].Position)
	}
}

func TestOptimalStrategy(t *testing.T) {
	svc := newTestService()

	tests := []struct {
		name string
		text string
		want types.Strategy
	}{
		{"empty", "", types.StrategyRecursive},
		{"plain", "Just a short prose paragraph about nothing in particular.", types.StrategyRecursive},
		{"code", "import os\ndef main():\n    pass\ndef other():\n    pass\n", types.StrategyCode},
		{"markdown", "# Title\n\nSome text.\n\n## Section\n\nMore **bold** text.\n", types.StrategyMarkdown},
		{"json", `{"key": "value", "other": [1, 2, 3]}`, types.StrategyJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.OptimalStrategy(tt.text))
		})
	}
}

func TestChunkDocument(t *testing.T) {
	svc := newTestService()
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# Notes\n\nSome markdown notes.\n"), 0o644))

	chunks, err := svc.ChunkDocument(context.Background(), path, "", testConfig(500, 0), nil)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Equal(t, path, chunks[0].Metadata["source"])
	assert.Equal(t, ".md", chunks[0].Metadata["file_extension"])
	assert.Equal(t, string(types.StrategyMarkdown), chunks[0].Metadata["strategy"])
}

func TestChunkDocumentMissingFile(t *testing.T) {
	svc := newTestService()
	_, err := svc.ChunkDocument(context.Background(), filepath.Join(t.TempDir(), "absent.txt"), "", testConfig(500, 0), nil)
	require.Error(t, err)
}

func TestChunkBatchIsolatesFailures(t *testing.T) {
	svc := newTestService()
	items := []BatchItem{
		{Text: "First document with enough text to chunk."},
		{Text: ""},
		{Text: "Third document, also fine."},
	}
	results, err := svc.ChunkBatch(context.Background(), items, "recursive", testConfig(100, 0), 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NotEmpty(t, results[0])
	assert.Empty(t, results[1])
	assert.NotEmpty(t, results[2])
}

func TestChunkerCacheReuse(t *testing.T) {
	svc := newTestService()
	cfg := testConfig(100, 10)
	a := svc.chunkerFor(types.StrategySentence, cfg)
	b := svc.chunkerFor(types.StrategySentence, cfg)
	assert.Same(t, a, b)

	c := svc.chunkerFor(types.StrategySentence, testConfig(200, 10))
	assert.NotSame(t, a, c)
}

func TestChunkerCacheDistinguishesSeparators(t *testing.T) {
	svc := newTestService()

	cfg1 := testConfig(6, 0)
	cfg1.Separators = []string{" ", ""}
	cfg2 := testConfig(6, 0)
	cfg2.Separators = []string{"|", ""}

	a := svc.chunkerFor(types.StrategyRecursive, cfg1)
	b := svc.chunkerFor(types.StrategyRecursive, cfg2)
	assert.NotSame(t, a, b)

	_, err := svc.ChunkText(context.Background(), "alpha|beta|gamma", "recursive", cfg1, nil)
	require.NoError(t, err)

	chunks, err := svc.ChunkText(context.Background(), "alpha|beta|gamma", "recursive", cfg2, nil)
	require.NoError(t, err)
	var got []string
	for _, c := range chunks {
		got = append(got, c.Text)
	}
	assert.Equal(t, []string{"alpha|", "beta|", "gamma"}, got)
}
