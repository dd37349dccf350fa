package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/semaphore"
)

var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
)

// Embedder generates dense vectors for text.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds many texts with bounded concurrency. A failed
	// item yields a zero-length vector in its slot rather than failing
	// the whole batch.
	EmbedBatch(ctx context.Context, texts []string, maxConcurrent int) ([][]float32, error)

	// Dimension reports the vector width this provider produces.
	Dimension() int

	// Provider returns the provider name.
	Provider() string

	// Close releases any resources held by the embedder.
	Close() error
}

// Cache is an in-memory LRU of vectors keyed by content hash.
type Cache struct {
	cache *lru.Cache[string, []float32]
}

func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy so caller mutations cannot pollute the cache.
func (c *Cache) Get(hash string) ([]float32, bool) {
	vec, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

func (c *Cache) Set(hash string, vec []float32) {
	c.cache.Add(hash, vec)
}

func (c *Cache) Size() int {
	return c.cache.Len()
}

func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash returns the SHA-256 hex digest used as the cache key.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// embedBatch runs provider Embed calls under a weighted semaphore,
// writing a zero-length slot for any text that fails.
func embedBatch(ctx context.Context, e Embedder, texts []string, maxConcurrent int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts provided", ErrEmptyText)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	sem := semaphore.NewWeighted(int64(maxConcurrent))
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if err := sem.Acquire(ctx, 1); err != nil {
			return results, err
		}
		go func(i int, text string) {
			defer sem.Release(1)
			vec, err := e.Embed(ctx, text)
			if err != nil {
				results[i] = []float32{}
				return
			}
			results[i] = vec
		}(i, text)
	}
	// Draining the full weight waits for all workers.
	if err := sem.Acquire(ctx, int64(maxConcurrent)); err != nil {
		return results, err
	}
	sem.Release(int64(maxConcurrent))
	return results, nil
}
