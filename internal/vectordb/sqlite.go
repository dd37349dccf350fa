package vectordb

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/recallhq/recall-mcp/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memories (
	rowid_pk INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	embedding BLOB,
	dimension INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	UNIQUE(user_id, id)
);

CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	content,
	id UNINDEXED,
	user_id UNINDEXED
);
`

var ftsOperatorPattern = regexp.MustCompile(`\b(AND|OR|NOT|NEAR)\b`)

// SQLiteDB stores records in SQLite with an FTS5 index for lexical
// search and Go-side cosine similarity for vector search. Built with
// the purego driver so no cgo toolchain is needed.
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func NewSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The purego driver does not support concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) Name() string { return "sqlite" }

func (s *SQLiteDB) Store(ctx context.Context, userID string, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.checkDimension(ctx, userID, chunks); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, ch := range chunks {
		metaJSON, err := json.Marshal(ch.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", ch.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memories (id, user_id, content, metadata, embedding, dimension, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, id) DO UPDATE SET
				content = excluded.content,
				metadata = excluded.metadata,
				embedding = excluded.embedding,
				dimension = excluded.dimension`,
			ch.ID, userID, ch.Text, string(metaJSON), serializeVector(ch.Embedding), len(ch.Embedding), now)
		if err != nil {
			return fmt.Errorf("upsert memory %s: %w", ch.ID, err)
		}

		// FTS5 has no upsert; replace the row pair.
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE id = ? AND user_id = ?`, ch.ID, userID); err != nil {
			return fmt.Errorf("clear fts row for %s: %w", ch.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO memories_fts (content, id, user_id) VALUES (?, ?, ?)`,
			ch.Text, ch.ID, userID); err != nil {
			return fmt.Errorf("index fts row for %s: %w", ch.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit store: %w", err)
	}
	return nil
}

// checkDimension rejects chunks whose embedding width disagrees with
// what the user already has stored.
func (s *SQLiteDB) checkDimension(ctx context.Context, userID string, chunks []types.Chunk) error {
	var existing int
	err := s.db.QueryRowContext(ctx,
		`SELECT dimension FROM memories WHERE user_id = ? AND dimension > 0 LIMIT 1`, userID).Scan(&existing)
	if err == sql.ErrNoRows {
		existing = 0
	} else if err != nil {
		return fmt.Errorf("query stored dimension: %w", err)
	}

	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			continue
		}
		if existing == 0 {
			existing = len(ch.Embedding)
			continue
		}
		if len(ch.Embedding) != existing {
			return fmt.Errorf("%w: got %d, store has %d", types.ErrDimensionMismatch, len(ch.Embedding), existing)
		}
	}
	return nil
}

func (s *SQLiteDB) SearchVector(ctx context.Context, userID string, vector []float32, topK int, filter map[string]any) ([]types.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if err := s.checkQueryDimension(ctx, userID, len(vector)); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, metadata, embedding
		FROM memories
		WHERE user_id = ? AND dimension > 0`, userID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []types.SearchResult
	for rows.Next() {
		var id, content, metaJSON string
		var blob []byte
		if err := rows.Scan(&id, &content, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		emb := deserializeVector(blob)
		sim := CosineSimilarity(vector, emb)

		r := types.SearchResult{ID: id, Text: content, Score: sim, Embedding: emb}
		if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
			r.Metadata = map[string]any{}
		}
		if !r.MatchesFilter(filter) {
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *SQLiteDB) checkQueryDimension(ctx context.Context, userID string, dim int) error {
	var existing int
	err := s.db.QueryRowContext(ctx,
		`SELECT dimension FROM memories WHERE user_id = ? AND dimension > 0 LIMIT 1`, userID).Scan(&existing)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("query stored dimension: %w", err)
	}
	if existing != dim {
		return fmt.Errorf("%w: query has %d, store has %d", types.ErrDimensionMismatch, dim, existing)
	}
	return nil
}

func (s *SQLiteDB) SearchText(ctx context.Context, userID string, query string, topK int, filter map[string]any) ([]types.SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	sanitized := sanitizeFTSQuery(query)
	if sanitized == "" {
		return nil, fmt.Errorf("empty search query")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, m.content, m.metadata, bm25(memories_fts) as score
		FROM memories_fts f
		INNER JOIN memories m ON m.id = f.id AND m.user_id = f.user_id
		WHERE memories_fts MATCH ? AND f.user_id = ?
		ORDER BY score LIMIT ?`, sanitized, userID, topK*2)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []types.SearchResult
	for rows.Next() {
		var id, content, metaJSON string
		var bm25 float64
		if err := rows.Scan(&id, &content, &metaJSON, &bm25); err != nil {
			return nil, fmt.Errorf("scan fts row: %w", err)
		}

		r := types.SearchResult{ID: id, Text: content, Score: normalizeBM25(bm25)}
		if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
			r.Metadata = map[string]any{}
		}
		if !r.MatchesFilter(filter) {
			continue
		}
		results = append(results, r)
		if len(results) == topK {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *SQLiteDB) Get(ctx context.Context, userID string, id string) (*types.SearchResult, error) {
	var content, metaJSON string
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT content, metadata, embedding FROM memories WHERE user_id = ? AND id = ?`,
		userID, id).Scan(&content, &metaJSON, &blob)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %s: %w", id, err)
	}

	r := &types.SearchResult{ID: id, Text: content, Embedding: deserializeVector(blob)}
	if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
		r.Metadata = map[string]any{}
	}
	return r, nil
}

func (s *SQLiteDB) List(ctx context.Context, userID string, limit, offset int) ([]types.SearchResult, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = -1 // sqlite's "no limit"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata FROM memories WHERE user_id = ? ORDER BY id LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []types.SearchResult
	for rows.Next() {
		var r types.SearchResult
		var metaJSON string
		if err := rows.Scan(&r.ID, &r.Text, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
			r.Metadata = map[string]any{}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteDB) Delete(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE user_id = ? AND id = ?`, userID, id); err != nil {
			return fmt.Errorf("delete memory %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM memories_fts WHERE user_id = ? AND id = ?`, userID, id); err != nil {
			return fmt.Errorf("delete fts row %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteDB) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

func (s *SQLiteDB) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: s.Name()}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT user_id), COALESCE(MAX(dimension), 0) FROM memories`).
		Scan(&stats.TotalVectors, &stats.Users, &stats.Dimension)
	if err != nil {
		return stats, fmt.Errorf("query stats: %w", err)
	}
	return stats, nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// normalizeBM25 maps FTS5's bm25 output (lower is better, often
// negative) onto (0,1] where higher is better.
func normalizeBM25(score float64) float64 {
	return 1.0 / (1.0 + math.Abs(score)/50.0)
}

// serializeVector packs float32s little-endian for blob storage.
func serializeVector(vector []float32) []byte {
	if len(vector) == 0 {
		return nil
	}
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

func deserializeVector(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}

// sanitizeFTSQuery escapes FTS5 syntax so user input cannot inject
// query operators.
func sanitizeFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	replacer := strings.NewReplacer(
		`"`, ` `,
		`*`, ` `,
		`(`, ` `,
		`)`, ` `,
		`:`, ` `,
		`^`, ` `,
		`-`, ` `,
	)
	escaped := replacer.Replace(query)
	escaped = ftsOperatorPattern.ReplaceAllStringFunc(escaped, func(match string) string {
		return `"` + match + `"`
	})

	// Quote each remaining term so FTS treats them as plain tokens.
	terms := strings.Fields(escaped)
	for i, t := range terms {
		if !strings.HasPrefix(t, `"`) {
			terms[i] = `"` + t + `"`
		}
	}
	return strings.Join(terms, " ")
}
