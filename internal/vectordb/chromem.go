package vectordb

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/recallhq/recall-mcp/pkg/types"
)

// ChromemDB persists records in a chromem-go collection. Chromem has no
// lexical index, so SearchText reports unsupported and hybrid search
// degrades to semantic only. A side index of ids per user backs Get,
// Delete, and Stats without scanning the collection.
type ChromemDB struct {
	db         *chromem.DB
	collection *chromem.Collection

	mu     sync.RWMutex
	byUser map[string]map[string]struct{}
	dim    int
}

// NewChromem opens a persistent store at path, or an in-memory one when
// path is empty.
func NewChromem(path, collectionName string) (*ChromemDB, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem database: %w", err)
		}
	}
	if collectionName == "" {
		collectionName = "memories"
	}

	// Embeddings are supplied by the caller, so no embedding func.
	collection, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", collectionName, err)
	}

	c := &ChromemDB{
		db:         db,
		collection: collection,
		byUser:     make(map[string]map[string]struct{}),
	}
	return c, nil
}

func (c *ChromemDB) Name() string { return "chromem" }

func (c *ChromemDB) Store(ctx context.Context, userID string, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	c.mu.Lock()
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			continue
		}
		if c.dim == 0 {
			c.dim = len(ch.Embedding)
		} else if len(ch.Embedding) != c.dim {
			c.mu.Unlock()
			return fmt.Errorf("%w: got %d, store has %d", types.ErrDimensionMismatch, len(ch.Embedding), c.dim)
		}
	}
	c.mu.Unlock()

	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", ch.ID)
		}
		meta := map[string]string{"user_id": userID}
		for k, v := range ch.Metadata {
			meta[k] = fmt.Sprintf("%v", v)
		}
		docs = append(docs, chromem.Document{
			ID:        compositeID(userID, ch.ID),
			Content:   ch.Text,
			Metadata:  meta,
			Embedding: ch.Embedding,
		})
	}
	if err := c.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}

	c.mu.Lock()
	ids := c.byUser[userID]
	if ids == nil {
		ids = make(map[string]struct{})
		c.byUser[userID] = ids
	}
	for _, ch := range chunks {
		ids[ch.ID] = struct{}{}
	}
	c.mu.Unlock()
	return nil
}

func (c *ChromemDB) SearchVector(ctx context.Context, userID string, vector []float32, topK int, filter map[string]any) ([]types.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	c.mu.RLock()
	userCount := len(c.byUser[userID])
	dim := c.dim
	c.mu.RUnlock()
	if userCount == 0 {
		return nil, nil
	}
	if dim != 0 && len(vector) != dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", types.ErrDimensionMismatch, len(vector), dim)
	}

	n := topK
	if n > userCount {
		n = userCount
	}
	hits, err := c.collection.QueryEmbedding(ctx, vector, n, map[string]string{"user_id": userID}, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	results := make([]types.SearchResult, 0, len(hits))
	for _, hit := range hits {
		r := types.SearchResult{
			ID:        localID(userID, hit.ID),
			Text:      hit.Content,
			Score:     float64(hit.Similarity),
			Metadata:  metadataToAny(hit.Metadata),
			Embedding: hit.Embedding,
		}
		if !r.MatchesFilter(filter) {
			continue
		}
		results = append(results, r)
	}
	return results, nil
}

// SearchText is unsupported: chromem keeps no lexical index.
func (c *ChromemDB) SearchText(ctx context.Context, userID string, query string, topK int, filter map[string]any) ([]types.SearchResult, error) {
	return nil, nil
}

func (c *ChromemDB) Get(ctx context.Context, userID string, id string) (*types.SearchResult, error) {
	c.mu.RLock()
	_, ok := c.byUser[userID][id]
	c.mu.RUnlock()
	if !ok {
		return nil, types.ErrNotFound
	}

	doc, err := c.collection.GetByID(ctx, compositeID(userID, id))
	if err != nil {
		return nil, types.ErrNotFound
	}
	return &types.SearchResult{
		ID:        id,
		Text:      doc.Content,
		Metadata:  metadataToAny(doc.Metadata),
		Embedding: doc.Embedding,
	}, nil
}

func (c *ChromemDB) List(ctx context.Context, userID string, limit, offset int) ([]types.SearchResult, error) {
	c.mu.RLock()
	ids := make([]string, 0, len(c.byUser[userID]))
	for id := range c.byUser[userID] {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
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
		doc, err := c.collection.GetByID(ctx, compositeID(userID, id))
		if err != nil {
			continue
		}
		results = append(results, types.SearchResult{
			ID:       id,
			Text:     doc.Content,
			Metadata: metadataToAny(doc.Metadata),
		})
	}
	return results, nil
}

func (c *ChromemDB) Delete(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	composite := make([]string, 0, len(ids))
	c.mu.Lock()
	owned := c.byUser[userID]
	for _, id := range ids {
		if _, ok := owned[id]; !ok {
			continue
		}
		delete(owned, id)
		composite = append(composite, compositeID(userID, id))
	}
	c.mu.Unlock()

	if len(composite) == 0 {
		return nil
	}
	if err := c.collection.Delete(ctx, nil, nil, composite...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

func (c *ChromemDB) Count(ctx context.Context, userID string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byUser[userID]), nil
}

func (c *ChromemDB) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{Backend: c.Name(), Users: len(c.byUser), Dimension: c.dim}
	for _, ids := range c.byUser {
		stats.TotalVectors += len(ids)
	}
	return stats, nil
}

func (c *ChromemDB) Close() error {
	return nil
}

// compositeID namespaces record ids per user inside the shared
// collection.
func compositeID(userID, id string) string {
	return userID + "/" + id
}

func localID(userID, composite string) string {
	prefix := userID + "/"
	if len(composite) > len(prefix) && composite[:len(prefix)] == prefix {
		return composite[len(prefix):]
	}
	return composite
}

func metadataToAny(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if k == "user_id" {
			continue
		}
		out[k] = v
	}
	return out
}
