package embedding

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/relaydesk/relaydesk/internal/metrics"
)

// Dimensions is the embedding width produced by the BGE-M3 service; the kb
// chunk vector column is declared with the same width.
const Dimensions = 1024

// Client is the embedding transport: batch text-to-vector plus a startup
// validation probe.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ValidateServer(ctx context.Context) error
}

// QueryEmbedder embeds one retrieval query. The vector retriever depends on
// this narrow capability, not on the batch transport.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Cache stores computed embeddings keyed by their exact input text.
type Cache interface {
	Get(key string) ([]float32, bool)
	Set(key string, value []float32, ttl time.Duration)
}

// MemoryCache is an in-process LRU with per-entry TTL. Suitable for single
// replicas; multi-replica deployments use the Redis-backed cache.
type MemoryCache struct {
	cache *lru.Cache
	ttl   time.Duration
	mu    sync.Mutex
}

type cacheEntry struct {
	value     []float32
	expiresAt time.Time
}

func NewMemoryCache(maxSize int, ttl time.Duration) (*MemoryCache, error) {
	cache, err := lru.New(maxSize)
	if err != nil {
		return nil, err
	}
	return &MemoryCache{cache: cache, ttl: ttl}, nil
}

func (c *MemoryCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	val, found := c.cache.Get(key)
	if !found {
		return nil, false
	}
	entry := val.(cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.value, true
}

func (c *MemoryCache) Set(key string, value []float32, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, cacheEntry{value: value, expiresAt: time.Now().Add(ttl)})
}

// NoOpCache disables caching.
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache { return &NoOpCache{} }

func (NoOpCache) Get(string) ([]float32, bool)         { return nil, false }
func (NoOpCache) Set(string, []float32, time.Duration) {}

// CachingEmbedder is the cache-aside layer in front of a QueryEmbedder:
// hit returns the stored vector, miss computes and stores it.
type CachingEmbedder struct {
	inner QueryEmbedder
	cache Cache
	ttl   time.Duration
}

func NewCachingEmbedder(inner QueryEmbedder, cache Cache, ttl time.Duration) *CachingEmbedder {
	return &CachingEmbedder{inner: inner, cache: cache, ttl: ttl}
}

func (c *CachingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := c.cache.Get(text); ok {
		metrics.RecordCacheHit("embedding")
		return cached, nil
	}
	metrics.RecordCacheMiss("embedding")

	vec, err := c.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, c.ttl)
	return vec, nil
}
