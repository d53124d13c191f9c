// Package embeddings wraps the embedding provider with a query cache
package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"supportcore/internal/cache"
)

// Provider generates a vector embedding for text
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CachedProvider memoizes query embeddings for a short TTL so repeated
// retrievals for the same query skip the provider call.
type CachedProvider struct {
	provider Provider
	cache    *cache.Cache[[]float32]
}

// NewCachedProvider wraps provider with a TTL cache
func NewCachedProvider(provider Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		cache:    cache.New[[]float32](ttl),
	}
}

// Embed returns the cached embedding or asks the provider
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.cache.GetOrLoad(ctx, cacheKey(text), func(ctx context.Context) ([]float32, error) {
		return p.provider.Embed(ctx, text)
	})
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
