package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recallhq/recall-mcp/internal/search"
	"github.com/recallhq/recall-mcp/pkg/types"
)

// Error codes follow JSON-RPC conventions with tool-specific codes in
// the -32000 range.
const (
	ErrorCodeInvalidParams = -32602
	ErrorCodeInternalError = -32603
	ErrorCodeStoreFailed   = -32001
	ErrorCodeSearchFailed  = -32002
)

// MCPError carries a code alongside the message so clients can branch
// on failure class.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func newMCPError(code int, format string, args ...interface{}) *MCPError {
	return &MCPError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (s *Server) handleStoreMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments")
	}

	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "user_id is required")
	}
	text, ok := args["text"].(string)
	if !ok || text == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "text is required")
	}

	cfg := types.DefaultChunkConfig()
	cfg.ChunkSize = getIntDefault(args, "chunk_size", cfg.ChunkSize)
	cfg.ChunkOverlap = getIntDefault(args, "chunk_overlap", cfg.ChunkOverlap)

	metadata := map[string]any{}
	if m, ok := args["metadata"].(map[string]interface{}); ok {
		for k, v := range m {
			metadata[k] = v
		}
	}
	// Chunks from one store call share a source id so they can be
	// filtered or deleted together later.
	sourceID := uuid.NewString()
	metadata["source_id"] = sourceID

	resp, err := s.service.StoreKnowledge(ctx, search.StoreRequest{
		UserID:   userID,
		Text:     text,
		Strategy: getStringDefault(args, "strategy", "auto"),
		Config:   cfg,
		Metadata: metadata,
	})
	if err != nil {
		return nil, newMCPError(ErrorCodeStoreFailed, "store failed: %v", err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"success":   true,
		"source_id": sourceID,
		"chunk_ids": resp.ChunkIDs,
		"stored":    resp.Stored,
		"skipped":   resp.Skipped,
	})), nil
}

func (s *Server) handleSearchMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments")
	}

	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "user_id is required")
	}
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "query is required")
	}

	cfg := types.DefaultSearchConfig()
	cfg.TopK = getIntDefault(args, "top_k", cfg.TopK)
	cfg.Mode = types.SearchMode(getStringDefault(args, "mode", string(cfg.Mode)))
	cfg.Ranking = types.RankingMethod(getStringDefault(args, "ranking", string(cfg.Ranking)))
	cfg.IncludeEmbeddings = getBoolDefault(args, "include_embeddings", false)
	if f, ok := args["filter"].(map[string]interface{}); ok {
		cfg.FilterMetadata = f
	}

	resp, err := s.service.Search(ctx, userID, query, cfg)
	if err != nil {
		return nil, newMCPError(ErrorCodeSearchFailed, "search failed: %v", err)
	}
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

func (s *Server) handleListMemories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments")
	}

	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "user_id is required")
	}

	memories, err := s.service.List(ctx, userID, getIntDefault(args, "limit", 50), getIntDefault(args, "offset", 0))
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "list failed: %v", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"success":  true,
		"memories": memories,
		"count":    len(memories),
	})), nil
}

func (s *Server) handleDeleteMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments")
	}

	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "user_id is required")
	}
	rawIDs, ok := args["memory_ids"].([]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "memory_ids is required")
	}
	ids := make([]string, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, ok := raw.(string)
		if !ok || id == "" {
			return nil, newMCPError(ErrorCodeInvalidParams, "memory_ids must be non-empty strings")
		}
		ids = append(ids, id)
	}

	if err := s.service.Delete(ctx, userID, ids); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "delete failed: %v", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"success": true,
		"deleted": len(ids),
	})), nil
}

func (s *Server) handleGetMemoryStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments")
	}

	userID, ok := args["user_id"].(string)
	if !ok || userID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "user_id is required")
	}

	stats, err := s.service.Stats(ctx, userID)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "stats failed: %v", err)
	}
	return mcp.NewToolResultText(formatJSON(stats)), nil
}

func getStringDefault(args map[string]interface{}, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func getIntDefault(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func getBoolDefault(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func formatJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(data)
}
