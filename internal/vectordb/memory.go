package vectordb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/recallhq/recall-mcp/pkg/types"
)

type memoryRecord struct {
	id        string
	text      string
	metadata  map[string]any
	embedding []float32
}

// MemoryDB is an in-process store guarded by a read-write mutex. Vector
// search is brute-force cosine; lexical search is term overlap. It is
// the default backend for tests and single-process use.
type MemoryDB struct {
	mu    sync.RWMutex
	users map[string]map[string]memoryRecord
	dim   int
}

func NewMemory() *MemoryDB {
	return &MemoryDB{users: make(map[string]map[string]memoryRecord)}
}

func (m *MemoryDB) Name() string { return "memory" }

func (m *MemoryDB) Store(ctx context.Context, userID string, chunks []types.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range chunks {
		if len(ch.Embedding) > 0 {
			if m.dim == 0 {
				m.dim = len(ch.Embedding)
			} else if len(ch.Embedding) != m.dim {
				return fmt.Errorf("%w: got %d, store has %d", types.ErrDimensionMismatch, len(ch.Embedding), m.dim)
			}
		}
	}

	records := m.users[userID]
	if records == nil {
		records = make(map[string]memoryRecord)
		m.users[userID] = records
	}
	for _, ch := range chunks {
		records[ch.ID] = memoryRecord{
			id:        ch.ID,
			text:      ch.Text,
			metadata:  ch.Metadata,
			embedding: ch.Embedding,
		}
	}
	return nil
}

func (m *MemoryDB) SearchVector(ctx context.Context, userID string, vector []float32, topK int, filter map[string]any) ([]types.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dim != 0 && len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", types.ErrDimensionMismatch, len(vector), m.dim)
	}

	var results []types.SearchResult
	for _, rec := range m.users[userID] {
		if len(rec.embedding) == 0 {
			continue
		}
		r := types.SearchResult{
			ID:        rec.id,
			Text:      rec.text,
			Score:     CosineSimilarity(vector, rec.embedding),
			Metadata:  rec.metadata,
			Embedding: rec.embedding,
		}
		if !r.MatchesFilter(filter) {
			continue
		}
		results = append(results, r)
	}
	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MemoryDB) SearchText(ctx context.Context, userID string, query string, topK int, filter map[string]any) ([]types.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty search query")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []types.SearchResult
	for _, rec := range m.users[userID] {
		score := termOverlap(terms, rec.text)
		if score == 0 {
			continue
		}
		r := types.SearchResult{
			ID:        rec.id,
			Text:      rec.text,
			Score:     score,
			Metadata:  rec.metadata,
			Embedding: rec.embedding,
		}
		if !r.MatchesFilter(filter) {
			continue
		}
		results = append(results, r)
	}
	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MemoryDB) Get(ctx context.Context, userID string, id string) (*types.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.users[userID][id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return &types.SearchResult{
		ID:        rec.id,
		Text:      rec.text,
		Metadata:  rec.metadata,
		Embedding: rec.embedding,
	}, nil
}

func (m *MemoryDB) List(ctx context.Context, userID string, limit, offset int) ([]types.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.users[userID]))
	for id := range m.users[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}

	results := make([]types.SearchResult, 0, len(ids))
	for _, id := range ids {
		rec := m.users[userID][id]
		results = append(results, types.SearchResult{
			ID:       rec.id,
			Text:     rec.text,
			Metadata: rec.metadata,
		})
	}
	return results, nil
}

func (m *MemoryDB) Delete(ctx context.Context, userID string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := m.users[userID]
	for _, id := range ids {
		delete(records, id)
	}
	return nil
}

func (m *MemoryDB) Count(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users[userID]), nil
}

func (m *MemoryDB) Stats(ctx context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{Backend: m.Name(), Users: len(m.users), Dimension: m.dim}
	for _, records := range m.users {
		stats.TotalVectors += len(records)
	}
	return stats, nil
}

func (m *MemoryDB) Close() error {
	return nil
}

func sortResults(results []types.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

func queryTerms(query string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		t = strings.Trim(t, ".,;:!?\"'")
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// termOverlap scores a document by the fraction of query terms it
// contains.
func termOverlap(terms []string, text string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
