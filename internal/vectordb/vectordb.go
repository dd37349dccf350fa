package vectordb

import (
	"context"

	"github.com/recallhq/recall-mcp/pkg/types"
)

// DB is the contract a vector store backend implements. Every operation
// is scoped to a user; a record belonging to another user behaves as if
// it does not exist.
type DB interface {
	// Store upserts chunks with their embeddings for a user.
	Store(ctx context.Context, userID string, chunks []types.Chunk) error

	// SearchVector returns the topK nearest records by cosine similarity.
	SearchVector(ctx context.Context, userID string, vector []float32, topK int, filter map[string]any) ([]types.SearchResult, error)

	// SearchText returns the topK best lexical matches. Backends without
	// a lexical index return (nil, nil) and hybrid search degrades.
	SearchText(ctx context.Context, userID string, query string, topK int, filter map[string]any) ([]types.SearchResult, error)

	// Get fetches one record by id. Missing or cross-user ids return
	// types.ErrNotFound.
	Get(ctx context.Context, userID string, id string) (*types.SearchResult, error)

	// List pages through a user's records in stable id order. A limit
	// of zero or less returns everything after offset.
	List(ctx context.Context, userID string, limit, offset int) ([]types.SearchResult, error)

	// Delete removes records by id. Ids that do not exist for the user
	// are ignored.
	Delete(ctx context.Context, userID string, ids []string) error

	// Count reports how many records the user has.
	Count(ctx context.Context, userID string) (int, error)

	// Stats reports backend-wide figures.
	Stats(ctx context.Context) (Stats, error)

	// Name identifies the backend implementation.
	Name() string

	Close() error
}

// Stats summarizes a backend's contents.
type Stats struct {
	Backend      string `json:"backend"`
	TotalVectors int    `json:"total_vectors"`
	Users        int    `json:"users"`
	Dimension    int    `json:"dimension"`
}
