package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/recallhq/recall-mcp/internal/chunker"
	"github.com/recallhq/recall-mcp/internal/embedder"
	"github.com/recallhq/recall-mcp/internal/reranker"
	"github.com/recallhq/recall-mcp/internal/search"
	"github.com/recallhq/recall-mcp/internal/vectordb"
)

const (
	// ServerName is the MCP server name
	ServerName = "recall-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"

	// EnvBackend selects the vector store backend (sqlite, chromem, memory)
	EnvBackend = "RECALL_BACKEND"
	// EnvDataDir overrides the default data directory
	EnvDataDir = "RECALL_DATA_DIR"
)

// Server wraps the MCP server with the search pipeline.
type Server struct {
	mcp     *server.MCPServer
	service *search.Service
	backend vectordb.DB
	log     zerolog.Logger
}

// NewServer builds the full pipeline from the environment: backend from
// RECALL_BACKEND, embedder via its own env detection, and the chunking
// and search services on top.
func NewServer(log zerolog.Logger) (*Server, error) {
	backend, err := openBackend()
	if err != nil {
		return nil, fmt.Errorf("initialize backend: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}

	chunks := chunker.NewService(log, emb)
	hybrid := vectordb.NewHybrid(backend, log)
	rr := reranker.New(reranker.DefaultConfig())
	svc := search.NewService(log, chunks, emb, hybrid, rr)

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		service: svc,
		backend: backend,
		log:     log.With().Str("component", "mcp").Logger(),
	}
	s.registerTools()
	return s, nil
}

// Serve runs the MCP server on stdio and blocks until shutdown.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.backend.Close() }()
	s.log.Info().Str("backend", s.backend.Name()).Msg("serving on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(storeMemoryTool(), s.handleStoreMemory)
	s.mcp.AddTool(searchMemoryTool(), s.handleSearchMemory)
	s.mcp.AddTool(listMemoriesTool(), s.handleListMemories)
	s.mcp.AddTool(deleteMemoryTool(), s.handleDeleteMemory)
	s.mcp.AddTool(getMemoryStatsTool(), s.handleGetMemoryStats)
}

func openBackend() (vectordb.DB, error) {
	switch strings.ToLower(os.Getenv(EnvBackend)) {
	case "", "sqlite":
		dir, err := dataDir()
		if err != nil {
			return nil, err
		}
		return vectordb.NewSQLite(filepath.Join(dir, "recall.db"))
	case "chromem":
		dir, err := dataDir()
		if err != nil {
			return nil, err
		}
		return vectordb.NewChromem(filepath.Join(dir, "chromem"), "memories")
	case "memory":
		return vectordb.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", os.Getenv(EnvBackend))
	}
}

func dataDir() (string, error) {
	dir := os.Getenv(EnvDataDir)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".recall")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dir, nil
}
