package storage

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache keeps the most recently produced cutouts in process.
type MemoryCache struct {
	entries *lru.Cache[string, []byte]
}

func NewMemoryCache(size int) (*MemoryCache, error) {
	entries, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryCache{entries: entries}, nil
}

func (c *MemoryCache) GetFromCache(_ context.Context, cacheKey string) ([]byte, error) {
	data, ok := c.entries.Get(cacheKey)
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (c *MemoryCache) SetCache(_ context.Context, cacheKey string, data []byte) error {
	c.entries.Add(cacheKey, data)
	return nil
}

func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

func (c *MemoryCache) GetCacheStats(_ context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"backend": "memory",
		"entries": c.entries.Len(),
	}, nil
}
