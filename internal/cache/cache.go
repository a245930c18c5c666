package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/mopscov/internal/model"
)

// Cache stores fetched listing pages
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

const keyPrefix = "mopscov:v1:"

// PageKey is the cache key of one listing page
func PageKey(req model.PageRequest) string {
	hash := sha256.Sum256([]byte(req.String()))
	return keyPrefix + hex.EncodeToString(hash[:])
}

// New builds the configured cache: layered memory over disk, or a no-op
// cache when caching is disabled
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return NopCache{}
	}
	return NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL)
}

// NopCache never stores anything
type NopCache struct{}

// Get always misses
func (NopCache) Get(string) ([]byte, bool) {
	return nil, false
}

// Set discards the value
func (NopCache) Set(string, []byte, time.Duration) error {
	return nil
}

// Delete is a no-op
func (NopCache) Delete(string) error {
	return nil
}

// Clear is a no-op
func (NopCache) Clear() error {
	return nil
}
