package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall-mcp/internal/chunker"
	"github.com/recallhq/recall-mcp/internal/embedder"
	"github.com/recallhq/recall-mcp/internal/search"
	"github.com/recallhq/recall-mcp/internal/vectordb"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := zerolog.Nop()
	emb := embedder.NewLocalProvider(embedder.NewCache(128))
	backend := vectordb.NewMemory()
	svc := search.NewService(log, chunker.NewService(log, nil), emb, vectordb.NewHybrid(backend, log), nil)
	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		service: svc,
		backend: backend,
		log:     log,
	}
	s.registerTools()
	return s
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "result content should be text")
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &payload))
	return payload
}

func TestStoreAndSearchMemory(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	storeResult, err := s.handleStoreMemory(ctx, callRequest("store_memory", map[string]interface{}{
		"user_id":  "alice",
		"text":     "Alice prefers dark roast coffee in the morning.",
		"strategy": "sentence",
		"metadata": map[string]interface{}{"topic": "preferences"},
	}))
	require.NoError(t, err)

	stored := resultJSON(t, storeResult)
	assert.Equal(t, true, stored["success"])
	assert.NotEmpty(t, stored["source_id"])
	assert.GreaterOrEqual(t, stored["stored"].(float64), 1.0)

	searchResult, err := s.handleSearchMemory(ctx, callRequest("search_memory", map[string]interface{}{
		"user_id": "alice",
		"query":   "dark roast coffee",
		"top_k":   5.0,
	}))
	require.NoError(t, err)

	found := resultJSON(t, searchResult)
	assert.Equal(t, true, found["success"])
	assert.GreaterOrEqual(t, found["total"].(float64), 1.0)
}

func TestStoreMemoryValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleStoreMemory(ctx, callRequest("store_memory", map[string]interface{}{
		"text": "no user",
	}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)

	_, err = s.handleStoreMemory(ctx, callRequest("store_memory", map[string]interface{}{
		"user_id": "alice",
	}))
	require.Error(t, err)
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestSearchMemoryValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleSearchMemory(ctx, callRequest("search_memory", map[string]interface{}{
		"user_id": "alice",
	}))
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeInvalidParams, mcpErr.Code)
}

func TestDeleteMemoryRemovesChunks(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	storeResult, err := s.handleStoreMemory(ctx, callRequest("store_memory", map[string]interface{}{
		"user_id": "bob",
		"text":    "Bob keeps a log of every hike he takes.",
	}))
	require.NoError(t, err)
	stored := resultJSON(t, storeResult)

	rawIDs := stored["chunk_ids"].([]interface{})
	require.NotEmpty(t, rawIDs)

	deleteResult, err := s.handleDeleteMemory(ctx, callRequest("delete_memory", map[string]interface{}{
		"user_id":    "bob",
		"memory_ids": rawIDs,
	}))
	require.NoError(t, err)
	deleted := resultJSON(t, deleteResult)
	assert.Equal(t, true, deleted["success"])

	statsResult, err := s.handleGetMemoryStats(ctx, callRequest("get_memory_stats", map[string]interface{}{
		"user_id": "bob",
	}))
	require.NoError(t, err)
	stats := resultJSON(t, statsResult)
	assert.Equal(t, 0.0, stats["user_memories"].(float64))
}

func TestGetMemoryStats(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleStoreMemory(ctx, callRequest("store_memory", map[string]interface{}{
		"user_id": "carol",
		"text":    "Carol collects vintage synthesizers.",
	}))
	require.NoError(t, err)

	statsResult, err := s.handleGetMemoryStats(ctx, callRequest("get_memory_stats", map[string]interface{}{
		"user_id": "carol",
	}))
	require.NoError(t, err)

	stats := resultJSON(t, statsResult)
	assert.Equal(t, "local", stats["embedding_provider"])
	assert.GreaterOrEqual(t, stats["user_memories"].(float64), 1.0)
}

func TestGetDefaultHelpers(t *testing.T) {
	args := map[string]interface{}{
		"str":   "value",
		"num":   7.0,
		"whole": 3,
		"flag":  true,
	}
	assert.Equal(t, "value", getStringDefault(args, "str", "d"))
	assert.Equal(t, "d", getStringDefault(args, "missing", "d"))
	assert.Equal(t, 7, getIntDefault(args, "num", 1))
	assert.Equal(t, 3, getIntDefault(args, "whole", 1))
	assert.Equal(t, 1, getIntDefault(args, "missing", 1))
	assert.True(t, getBoolDefault(args, "flag", false))
	assert.False(t, getBoolDefault(args, "missing", false))
}

func TestListMemoriesPaginates(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleStoreMemory(ctx, callRequest("store_memory", map[string]interface{}{
		"user_id":  "dave",
		"strategy": "sentence",
		"text":     "First note about sailing. Second note about knots. Third note about tides.",
	}))
	require.NoError(t, err)

	listResult, err := s.handleListMemories(ctx, callRequest("list_memories", map[string]interface{}{
		"user_id": "dave",
		"limit":   2.0,
	}))
	require.NoError(t, err)

	listed := resultJSON(t, listResult)
	assert.Equal(t, true, listed["success"])
	assert.LessOrEqual(t, listed["count"].(float64), 2.0)
	assert.NotEmpty(t, listed["memories"])
}
