package vectordb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall-mcp/pkg/types"
)

func chunk(id, text string, emb []float32, meta map[string]any) types.Chunk {
	return types.Chunk{ID: id, Text: text, Metadata: meta, Embedding: emb}
}

// backendsUnderTest returns a fresh instance of every backend that
// supports the full contract in-process.
func backendsUnderTest(t *testing.T) map[string]DB {
	t.Helper()
	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]DB{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestBackendStoreAndGet(t *testing.T) {
	for name, db := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := db.Store(ctx, "u1", []types.Chunk{
				chunk("c1", "the first memory", []float32{1, 0}, map[string]any{"topic": "alpha"}),
			})
			require.NoError(t, err)

			got, err := db.Get(ctx, "u1", "c1")
			require.NoError(t, err)
			assert.Equal(t, "the first memory", got.Text)
			assert.Equal(t, []float32{1, 0}, got.Embedding)
		})
	}
}

func TestBackendUserIsolation(t *testing.T) {
	for name, db := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.Store(ctx, "alice", []types.Chunk{
				chunk("c1", "alice's secret", []float32{1, 0}, nil),
			}))

			// Another user sees neither the record nor its existence.
			_, err := db.Get(ctx, "mallory", "c1")
			assert.ErrorIs(t, err, types.ErrNotFound)

			results, err := db.SearchVector(ctx, "mallory", []float32{1, 0}, 10, nil)
			require.NoError(t, err)
			assert.Empty(t, results)

			// Deleting someone else's record is a silent no-op.
			require.NoError(t, db.Delete(ctx, "mallory", []string{"c1"}))
			_, err = db.Get(ctx, "alice", "c1")
			assert.NoError(t, err)
		})
	}
}

func TestBackendVectorSearchRanksBySimilarity(t *testing.T) {
	for name, db := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.Store(ctx, "u1", []types.Chunk{
				chunk("close", "near the query", []float32{1, 0.1}, nil),
				chunk("far", "far from the query", []float32{0, 1}, nil),
				chunk("exact", "matches the query", []float32{1, 0}, nil),
			}))

			results, err := db.SearchVector(ctx, "u1", []float32{1, 0}, 2, nil)
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, "exact", results[0].ID)
			assert.Equal(t, "close", results[1].ID)
			assert.Greater(t, results[0].Score, results[1].Score)
		})
	}
}

func TestBackendDimensionMismatch(t *testing.T) {
	for name, db := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.Store(ctx, "u1", []types.Chunk{
				chunk("c1", "two dims", []float32{1, 0}, nil),
			}))

			err := db.Store(ctx, "u1", []types.Chunk{
				chunk("c2", "three dims", []float32{1, 0, 0}, nil),
			})
			assert.ErrorIs(t, err, types.ErrDimensionMismatch)

			_, err = db.SearchVector(ctx, "u1", []float32{1, 0, 0}, 5, nil)
			assert.ErrorIs(t, err, types.ErrDimensionMismatch)
		})
	}
}

func TestBackendMetadataFilter(t *testing.T) {
	for name, db := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.Store(ctx, "u1", []types.Chunk{
				chunk("work", "meeting notes", []float32{1, 0}, map[string]any{"tag": "work"}),
				chunk("home", "grocery list", []float32{1, 0}, map[string]any{"tag": "home"}),
			}))

			results, err := db.SearchVector(ctx, "u1", []float32{1, 0}, 10, map[string]any{"tag": "work"})
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "work", results[0].ID)
		})
	}
}

func TestBackendDeleteAndCount(t *testing.T) {
	for name, db := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.Store(ctx, "u1", []types.Chunk{
				chunk("c1", "one", []float32{1, 0}, nil),
				chunk("c2", "two", []float32{0, 1}, nil),
			}))

			n, err := db.Count(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.NoError(t, db.Delete(ctx, "u1", []string{"c1", "missing"}))
			n, err = db.Count(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			_, err = db.Get(ctx, "u1", "c1")
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestBackendUpsertReplaces(t *testing.T) {
	for name, db := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.Store(ctx, "u1", []types.Chunk{
				chunk("c1", "original", []float32{1, 0}, nil),
			}))
			require.NoError(t, db.Store(ctx, "u1", []types.Chunk{
				chunk("c1", "replaced", []float32{0, 1}, nil),
			}))

			got, err := db.Get(ctx, "u1", "c1")
			require.NoError(t, err)
			assert.Equal(t, "replaced", got.Text)

			n, err := db.Count(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestSQLiteTextSearch(t *testing.T) {
	db, err := NewSQLite(filepath.Join(t.TempDir(), "fts.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	require.NoError(t, db.Store(ctx, "u1", []types.Chunk{
		chunk("go", "golang channels and goroutines", []float32{1, 0}, nil),
		chunk("py", "python decorators and generators", []float32{0, 1}, nil),
	}))

	results, err := db.SearchText(ctx, "u1", "goroutines", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "go", results[0].ID)
	assert.Greater(t, results[0].Score, 0.0)
	assert.LessOrEqual(t, results[0].Score, 1.0)
}

func TestSQLiteTextSearchSanitizesOperators(t *testing.T) {
	db, err := NewSQLite(filepath.Join(t.TempDir(), "fts.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	require.NoError(t, db.Store(ctx, "u1", []types.Chunk{
		chunk("c1", "plain content", []float32{1}, nil),
	}))

	// Raw FTS operators in user input must not cause syntax errors.
	_, err = db.SearchText(ctx, "u1", `plain AND "content* (OR)`, 10, nil)
	assert.NoError(t, err)
}

func TestMemoryTextSearchTermOverlap(t *testing.T) {
	db := NewMemory()
	ctx := context.Background()
	require.NoError(t, db.Store(ctx, "u1", []types.Chunk{
		chunk("both", "apples and oranges", []float32{1}, nil),
		chunk("one", "apples only here", []float32{1}, nil),
		chunk("none", "unrelated text", []float32{1}, nil),
	}))

	results, err := db.SearchText(ctx, "u1", "apples oranges", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "both", results[0].ID)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, 0.5, results[1].Score)
}

func TestStats(t *testing.T) {
	db := NewMemory()
	ctx := context.Background()
	require.NoError(t, db.Store(ctx, "u1", []types.Chunk{chunk("a", "x", []float32{1, 0}, nil)}))
	require.NoError(t, db.Store(ctx, "u2", []types.Chunk{chunk("b", "y", []float32{0, 1}, nil)}))

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "memory", stats.Backend)
	assert.Equal(t, 2, stats.TotalVectors)
	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 2, stats.Dimension)
}

// legBackend wraps MemoryDB with switchable leg failures for hybrid
// orchestration tests.
type legBackend struct {
	*MemoryDB
	failVector bool
	failText   bool
}

func (l *legBackend) SearchVector(ctx context.Context, userID string, vector []float32, topK int, filter map[string]any) ([]types.SearchResult, error) {
	if l.failVector {
		return nil, fmt.Errorf("vector leg down")
	}
	return l.MemoryDB.SearchVector(ctx, userID, vector, topK, filter)
}

func (l *legBackend) SearchText(ctx context.Context, userID string, query string, topK int, filter map[string]any) ([]types.SearchResult, error) {
	if l.failText {
		return nil, fmt.Errorf("text leg down")
	}
	return l.MemoryDB.SearchText(ctx, userID, query, topK, filter)
}

func seedHybrid(t *testing.T, backend DB) {
	t.Helper()
	require.NoError(t, backend.Store(context.Background(), "u1", []types.Chunk{
		chunk("m1", "walking the dog in the park", []float32{1, 0}, nil),
		chunk("m2", "cooking pasta for dinner", []float32{0.9, 0.1}, nil),
		chunk("m3", "dog training tips", []float32{0, 1}, nil),
	}))
}

func TestHybridSearchFusesBothLegs(t *testing.T) {
	backend := &legBackend{MemoryDB: NewMemory()}
	seedHybrid(t, backend)
	h := NewHybrid(backend, zerolog.Nop())

	cfg := types.DefaultSearchConfig()
	cfg.TopK = 3
	results, err := h.Search(context.Background(), "u1", "dog", []float32{1, 0}, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// m1 is both the top vector hit and a lexical hit, so fusion must
	// rank it first.
	assert.Equal(t, "m1", results[0].ID)
}

func TestHybridSearchToleratesOneFailedLeg(t *testing.T) {
	for _, tc := range []struct {
		name string
		mut  func(*legBackend)
	}{
		{"vector leg fails", func(b *legBackend) { b.failVector = true }},
		{"text leg fails", func(b *legBackend) { b.failText = true }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			backend := &legBackend{MemoryDB: NewMemory()}
			seedHybrid(t, backend)
			tc.mut(backend)
			h := NewHybrid(backend, zerolog.Nop())

			results, err := h.Search(context.Background(), "u1", "dog", []float32{1, 0}, types.DefaultSearchConfig())
			require.NoError(t, err)
			assert.NotEmpty(t, results)
		})
	}
}

func TestHybridSearchFailsWhenBothLegsFail(t *testing.T) {
	backend := &legBackend{MemoryDB: NewMemory(), failVector: true, failText: true}
	seedHybrid(t, backend)
	h := NewHybrid(backend, zerolog.Nop())

	_, err := h.Search(context.Background(), "u1", "dog", []float32{1, 0}, types.DefaultSearchConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both search legs failed")
}

func TestHybridUnknownRankingFallsBackToSemantic(t *testing.T) {
	backend := &legBackend{MemoryDB: NewMemory()}
	seedHybrid(t, backend)
	h := NewHybrid(backend, zerolog.Nop())

	cfg := types.DefaultSearchConfig()
	cfg.Ranking = "quantum"
	results, err := h.Search(context.Background(), "u1", "dog", []float32{1, 0}, cfg)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "m1", results[0].ID)
}

func TestHybridLexicalModeWithoutIndexDegrades(t *testing.T) {
	// Chromem has no lexical index; lexical mode must degrade to
	// semantic instead of failing.
	db, err := NewChromem("", "test")
	require.NoError(t, err)
	require.NoError(t, db.Store(context.Background(), "u1", []types.Chunk{
		chunk("c1", "some text", []float32{1, 0}, nil),
	}))

	h := NewHybrid(db, zerolog.Nop())
	cfg := types.DefaultSearchConfig()
	cfg.Mode = types.SearchModeLexical
	results, err := h.Search(context.Background(), "u1", "some", []float32{1, 0}, cfg)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ID)
}

func TestHybridStripsEmbeddingsByDefault(t *testing.T) {
	backend := &legBackend{MemoryDB: NewMemory()}
	seedHybrid(t, backend)
	h := NewHybrid(backend, zerolog.Nop())

	results, err := h.Search(context.Background(), "u1", "dog", []float32{1, 0}, types.DefaultSearchConfig())
	require.NoError(t, err)
	for _, r := range results {
		assert.Nil(t, r.Embedding)
	}

	cfg := types.DefaultSearchConfig()
	cfg.IncludeEmbeddings = true
	results, err = h.Search(context.Background(), "u1", "dog", []float32{1, 0}, cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, results[0].Embedding)
}

func TestChromemUserIsolation(t *testing.T) {
	db, err := NewChromem("", "isolation")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, db.Store(ctx, "alice", []types.Chunk{
		chunk("c1", "private note", []float32{1, 0}, nil),
	}))

	_, err = db.Get(ctx, "bob", "c1")
	assert.ErrorIs(t, err, types.ErrNotFound)

	results, err := db.SearchVector(ctx, "bob", []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestErrorsWrapSentinels(t *testing.T) {
	db := NewMemory()
	_, err := db.Get(context.Background(), "u", "missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestBackendListPaginates(t *testing.T) {
	for name, db := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, db.Store(ctx, "u1", []types.Chunk{
				chunk("a", "first", []float32{1, 0}, nil),
				chunk("b", "second", []float32{0, 1}, nil),
				chunk("c", "third", []float32{1, 1}, nil),
			}))
			require.NoError(t, db.Store(ctx, "u2", []types.Chunk{
				chunk("z", "other user", []float32{1, 0}, nil),
			}))

			all, err := db.List(ctx, "u1", 0, 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "a", all[0].ID)
			assert.Equal(t, "b", all[1].ID)
			assert.Equal(t, "c", all[2].ID)

			page, err := db.List(ctx, "u1", 2, 1)
			require.NoError(t, err)
			require.Len(t, page, 2)
			assert.Equal(t, "b", page[0].ID)
			assert.Equal(t, "c", page[1].ID)

			past, err := db.List(ctx, "u1", 10, 5)
			require.NoError(t, err)
			assert.Empty(t, past)
		})
	}
}
