package cache

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/relaydesk/relaydesk/internal/domain/embedding"
)

// EmbeddingCache stores query embeddings in Redis so identical questions
// across replicas skip the embedding service. Vectors are packed as
// little-endian float32.
type EmbeddingCache struct {
	cache     *RedisCache
	keyPrefix string
	ttl       time.Duration
}

var _ embedding.Cache = (*EmbeddingCache)(nil)

func NewEmbeddingCache(redisURL, keyPrefix string, ttl time.Duration) (*EmbeddingCache, error) {
	cache, err := NewRedisCache(redisURL)
	if err != nil {
		return nil, err
	}

	return &EmbeddingCache{
		cache:     cache,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}, nil
}

func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	ctx := context.Background()
	data, err := c.cache.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}

	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, true
}

func (c *EmbeddingCache) Set(key string, value []float32, ttl time.Duration) {
	ctx := context.Background()

	data := make([]byte, len(value)*4)
	for i, f := range value {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(f))
	}

	if ttl <= 0 {
		ttl = c.ttl
	}
	c.cache.client.Set(ctx, c.keyPrefix+key, data, ttl)
}

func (c *EmbeddingCache) HealthCheck(ctx context.Context) error {
	return c.cache.HealthCheck(ctx)
}

func (c *EmbeddingCache) Close() error {
	return c.cache.Close()
}
