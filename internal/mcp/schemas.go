package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func storeMemoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "store_memory",
		Description: "Store text as searchable memories for a user. The text is chunked, embedded, and persisted; returns the chunk IDs that were stored.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "User the memories belong to",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Text to remember",
				},
				"strategy": map[string]interface{}{
					"type":        "string",
					"description": "Chunking strategy (fixed_size, sentence, recursive, markdown_aware, code_aware, semantic, token_based, hierarchical, hybrid, paragraph, topic, table_aware, conversation_aware, json_aware, sliding_window). Empty or 'auto' picks one from the content.",
					"default":     "auto",
				},
				"chunk_size": map[string]interface{}{
					"type":        "number",
					"description": "Target chunk size in characters",
					"default":     1000,
					"minimum":     1,
				},
				"chunk_overlap": map[string]interface{}{
					"type":        "number",
					"description": "Overlap between consecutive chunks in characters",
					"default":     200,
					"minimum":     0,
				},
				"metadata": map[string]interface{}{
					"type":        "object",
					"description": "Arbitrary key/value pairs attached to every stored chunk",
				},
			},
			Required: []string{"user_id", "text"},
		},
	}
}

func searchMemoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_memory",
		Description: "Search a user's memories. Hybrid mode fuses embedding similarity with keyword matching; degraded single-channel results are flagged rather than failed.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "User whose memories to search",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language query",
				},
				"top_k": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of results",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"mode": map[string]interface{}{
					"type":        "string",
					"description": "Search mode: semantic, lexical, or hybrid",
					"default":     "hybrid",
					"enum":        []string{"semantic", "lexical", "hybrid"},
				},
				"ranking": map[string]interface{}{
					"type":        "string",
					"description": "Fusion method for hybrid mode: rrf, weighted, or mmr",
					"default":     "rrf",
					"enum":        []string{"rrf", "weighted", "mmr"},
				},
				"filter": map[string]interface{}{
					"type":        "object",
					"description": "Metadata filter; results must match every listed key/value pair",
				},
				"include_embeddings": map[string]interface{}{
					"type":        "boolean",
					"description": "Include raw embedding vectors in results",
					"default":     false,
				},
			},
			Required: []string{"user_id", "query"},
		},
	}
}

func listMemoriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_memories",
		Description: "Page through a user's stored memories in stable ID order.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "User whose memories to list",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of memories to return",
					"default":     50,
					"minimum":     1,
					"maximum":     500,
				},
				"offset": map[string]interface{}{
					"type":        "number",
					"description": "Number of memories to skip",
					"default":     0,
					"minimum":     0,
				},
			},
			Required: []string{"user_id"},
		},
	}
}

func deleteMemoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_memory",
		Description: "Delete memories by ID for a user. IDs that do not exist or belong to another user are ignored.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "User the memories belong to",
				},
				"memory_ids": map[string]interface{}{
					"type":        "array",
					"description": "Memory IDs to delete",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
			Required: []string{"user_id", "memory_ids"},
		},
	}
}

func getMemoryStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_memory_stats",
		Description: "Report memory counts for a user together with backend and embedding provider details.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"user_id": map[string]interface{}{
					"type":        "string",
					"description": "User to report on",
				},
			},
			Required: []string{"user_id"},
		},
	}
}
