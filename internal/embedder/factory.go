package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Config holds explicit embedder configuration.
type Config struct {
	Provider  string
	APIKey    string
	OllamaURL string
	Model     string
	CacheSize int
}

// NewFromEnv creates an embedder from environment variables.
// Priority:
//  1. RECALL_EMBEDDING_PROVIDER (ollama, openai, local)
//  2. OPENAI_API_KEY set means openai
//  3. RECALL_OLLAMA_URL set means ollama
//  4. local otherwise
func NewFromEnv() (Embedder, error) {
	cache := NewCache(10000)

	if provider := strings.ToLower(os.Getenv(EnvProvider)); provider != "" {
		switch provider {
		case ProviderOllama:
			return NewOllamaProvider("", "", cache), nil
		case ProviderOpenAI:
			return NewOpenAIProvider("", cache)
		case ProviderLocal:
			return NewLocalProvider(cache), nil
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
		}
	}

	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return NewOpenAIProvider("", cache)
	}
	if os.Getenv(EnvOllamaURL) != "" {
		return NewOllamaProvider("", "", cache), nil
	}
	return NewLocalProvider(cache), nil
}

// New creates an embedder with explicit configuration.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama:
		return NewOllamaProvider(cfg.OllamaURL, cfg.Model, cache), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cache)
	case ProviderLocal:
		return NewLocalProvider(cache), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}

// DetectProvider reports which provider NewFromEnv would choose.
func DetectProvider() string {
	if provider := strings.ToLower(os.Getenv(EnvProvider)); provider != "" {
		return provider
	}
	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvOllamaURL) != "" {
		return ProviderOllama
	}
	return ProviderLocal
}
