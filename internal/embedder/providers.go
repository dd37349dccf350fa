package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"time"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	DefaultOllamaModel = "nomic-embed-text"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaURL   = "http://localhost:11434"

	OllamaDimension = 768
	OpenAIDimension = 1536
	LocalDimension  = 384

	EnvProvider     = "RECALL_EMBEDDING_PROVIDER"
	EnvOllamaURL    = "RECALL_OLLAMA_URL"
	EnvOllamaModel  = "RECALL_OLLAMA_MODEL"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	maxRetries        = 3
	initialBackoffMs  = 100
	maxBackoffMs      = 5000
	backoffMultiplier = 2.0
)

// OllamaProvider generates embeddings through a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	cache      *Cache
}

func NewOllamaProvider(baseURL, model string, cache *Cache) *OllamaProvider {
	if baseURL == "" {
		baseURL = os.Getenv(EnvOllamaURL)
	}
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = os.Getenv(EnvOllamaModel)
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		cache: cache,
	}
}

func (o *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if o.cache != nil {
		if vec, ok := o.cache.Get(hash); ok {
			return vec, nil
		}
	}

	config := DefaultRetryConfig()
	vec, err := retryWithBackoff(ctx, config, func() ([]float32, error) {
		return o.callAPI(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d retries: %v", ErrProviderFailed, config.MaxRetries, err)
	}

	if o.cache != nil {
		o.cache.Set(hash, vec)
	}
	return vec, nil
}

func (o *OllamaProvider) callAPI(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model":  o.model,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &apiError{status: resp.StatusCode, body: string(bodyBytes)}
	}

	var apiResp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return apiResp.Embedding, nil
}

func (o *OllamaProvider) EmbedBatch(ctx context.Context, texts []string, maxConcurrent int) ([][]float32, error) {
	return embedBatch(ctx, o, texts, maxConcurrent)
}

func (o *OllamaProvider) Dimension() int {
	return OllamaDimension
}

func (o *OllamaProvider) Provider() string {
	return ProviderOllama
}

func (o *OllamaProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// OpenAIProvider generates embeddings through the OpenAI API.
type OpenAIProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	cache      *Cache
}

func NewOpenAIProvider(apiKey string, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	return &OpenAIProvider{
		apiKey: apiKey,
		model:  DefaultOpenAIModel,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
	}, nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if o.cache != nil {
		if vec, ok := o.cache.Get(hash); ok {
			return vec, nil
		}
	}

	config := DefaultRetryConfig()
	vec, err := retryWithBackoff(ctx, config, func() ([]float32, error) {
		return o.callAPI(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d retries: %v", ErrProviderFailed, config.MaxRetries, err)
	}

	if o.cache != nil {
		o.cache.Set(hash, vec)
	}
	return vec, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"input": []string{text},
		"model": o.model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, &apiError{status: resp.StatusCode, body: string(bodyBytes)}
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) == 0 || len(apiResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return apiResp.Data[0].Embedding, nil
}

func (o *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string, maxConcurrent int) ([][]float32, error) {
	return embedBatch(ctx, o, texts, maxConcurrent)
}

func (o *OpenAIProvider) Dimension() int {
	return OpenAIDimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic hash-derived vectors. It keeps
// the pipeline working offline and in tests; similar texts do not get
// similar vectors.
type LocalProvider struct {
	cache *Cache
}

func NewLocalProvider(cache *Cache) *LocalProvider {
	return &LocalProvider{cache: cache}
}

func (l *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if l.cache != nil {
		if vec, ok := l.cache.Get(hash); ok {
			return vec, nil
		}
	}

	vector := make([]float32, LocalDimension)
	seed := sha256.Sum256([]byte(text))
	for i := range vector {
		b := seed[i%len(seed)]
		// Mix the position in so the vector is not periodic.
		vector[i] = float32((int(b)+i*31)%256)/255.0 - 0.5
	}
	vector = NormalizeVector(vector)

	if l.cache != nil {
		l.cache.Set(hash, vector)
	}
	return vector, nil
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string, maxConcurrent int) ([][]float32, error) {
	return embedBatch(ctx, l, texts, maxConcurrent)
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Close() error {
	return nil
}

// NormalizeVector scales a vector to unit length.
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}
