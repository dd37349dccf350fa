package embedder

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalProviderDeterministic(t *testing.T) {
	p := NewLocalProvider(nil)
	a, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, LocalDimension)

	c, err := p.Embed(context.Background(), "different text")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestLocalProviderRejectsEmptyText(t *testing.T) {
	p := NewLocalProvider(nil)
	_, err := p.Embed(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestLocalProviderUnitNorm(t *testing.T) {
	p := NewLocalProvider(nil)
	vec, err := p.Embed(context.Background(), "norm check")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestCacheReturnsCopies(t *testing.T) {
	cache := NewCache(10)
	cache.Set("k", []float32{1, 2, 3})

	got, ok := cache.Get("k")
	require.True(t, ok)
	got[0] = 99

	again, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, float32(1), again[0])
}

func TestCacheEviction(t *testing.T) {
	cache := NewCache(2)
	cache.Set("a", []float32{1})
	cache.Set("b", []float32{2})
	cache.Set("c", []float32{3})

	assert.Equal(t, 2, cache.Size())
	_, ok := cache.Get("a")
	assert.False(t, ok)
}

func TestOllamaProviderEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding": [0.1, 0.2, 0.3]}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test-model", nil)
	vec, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestOllamaProviderRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test-model", nil)
	_, err := p.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(maxRetries), calls.Load())
}

func TestOllamaProviderStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test-model", nil)
	_, err := p.Embed(context.Background(), "hello")
	require.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(1), calls.Load(), "a client error is permanent, no retries")
}

func TestRetryableClassifiesStatus(t *testing.T) {
	assert.True(t, retryable(assert.AnError))
	assert.True(t, retryable(&apiError{status: http.StatusInternalServerError}))
	assert.True(t, retryable(&apiError{status: http.StatusTooManyRequests}))
	assert.True(t, retryable(&apiError{status: http.StatusRequestTimeout}))
	assert.False(t, retryable(&apiError{status: http.StatusBadRequest}))
	assert.False(t, retryable(&apiError{status: http.StatusUnauthorized}))
}

func TestOllamaProviderCacheHitSkipsAPI(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"embedding": [1, 2]}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test-model", NewCache(10))
	_, err := p.Embed(context.Background(), "cached text")
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), "cached text")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedBatchZeroVectorOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "poison") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"embedding": [0.5]}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "test-model", nil)
	results, err := p.EmbedBatch(context.Background(), []string{"good", "poison", "also good"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, []float32{0.5}, results[0])
	assert.Empty(t, results[1], "failed item must produce an empty slot")
	assert.Equal(t, []float32{0.5}, results[2])
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	p := NewLocalProvider(nil)
	_, err := p.EmbedBatch(context.Background(), nil, 4)
	assert.Error(t, err)
}

func TestRetryWithBackoffStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	calls := 0
	_, err := retryWithBackoff(ctx, cfg, func() (int, error) {
		calls++
		return 0, assert.AnError
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDetectProvider(t *testing.T) {
	t.Setenv(EnvProvider, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvOllamaURL, "")
	assert.Equal(t, ProviderLocal, DetectProvider())

	t.Setenv(EnvOllamaURL, "http://localhost:11434")
	assert.Equal(t, ProviderOllama, DetectProvider())

	t.Setenv(EnvOpenAIAPIKey, "sk-test")
	assert.Equal(t, ProviderOpenAI, DetectProvider())

	t.Setenv(EnvProvider, "local")
	assert.Equal(t, ProviderLocal, DetectProvider())
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "quantum"})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNormalizeVectorZero(t *testing.T) {
	v := []float32{0, 0, 0}
	assert.Equal(t, v, NormalizeVector(v))
}
