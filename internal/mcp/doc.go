// Package mcp implements the Model Context Protocol (MCP) server for Recall.
//
// The server exposes five tools to AI assistants:
//   - store_memory: chunk, embed, and persist text for a user
//   - search_memory: hybrid semantic + lexical search over a user's memories
//   - list_memories: page through a user's memories
//   - delete_memory: remove memories by ID
//   - get_memory_stats: per-user counts and backend details
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Tool: store_memory
//
//	Request:
//	{
//	  "name": "store_memory",
//	  "arguments": {
//	    "user_id": "alice",
//	    "text": "Alice prefers dark roast coffee.",
//	    "strategy": "sentence",
//	    "metadata": {"topic": "preferences"}
//	  }
//	}
//
//	Response:
//	{
//	  "success": true,
//	  "source_id": "7f9c...",
//	  "chunk_ids": ["0-ab12..."],
//	  "stored": 1,
//	  "skipped": 0
//	}
//
// # Tool: search_memory
//
//	Request:
//	{
//	  "name": "search_memory",
//	  "arguments": {
//	    "user_id": "alice",
//	    "query": "what coffee does alice like",
//	    "top_k": 5,
//	    "mode": "hybrid",
//	    "ranking": "rrf"
//	  }
//	}
//
// The response envelope always reports success and mode. A degraded
// flag is set when one search channel was unavailable and the results
// came from the other.
//
// # Error Handling
//
// Tool failures return MCPError values with JSON-RPC style codes:
// -32602 for invalid parameters, -32603 for internal errors, and
// -32001/-32002 for store and search failures.
//
// # Configuration
//
// The backend is selected with RECALL_BACKEND (sqlite, chromem, or
// memory; sqlite is the default) and stores data under RECALL_DATA_DIR
// or ~/.recall. The embedding provider is resolved from the environment
// by the embedder package.
package mcp
