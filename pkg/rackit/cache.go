package rackit

import (
	"fmt"
	"sync"
)

// Cache holds the most recently retrieved full Resource instance per primary
// key. Entries are replaced, never merged, on re-fetch. Aliases let an
// instance be found under secondary identifiers (its canonical path, unique
// fields declared as CacheKeys, lookup values used by FindBy).
//
// Implementations must be safe for concurrent use; every manager mutation of
// the cache races reads from other goroutines sharing the connection.
type Cache interface {
	// Has reports whether the key (or an alias of it) is present.
	Has(key string) bool

	// Get returns the cached instance for the key or any alias of it.
	Get(key string) (*Resource, bool)

	// Put stores the resource under its primary key and registers the given
	// aliases for it. It returns the stored resource.
	Put(resource *Resource, aliases ...string) *Resource

	// Evict removes the entry for the given primary key, returning the
	// evicted resource if one existed. Aliases do not evict.
	Evict(key string) (*Resource, bool)

	// Clear drops every entry.
	Clear()
}

// CacheFactory produces the cache used for one resource type. A connection
// calls it once per schema; root and nested managers for the same schema
// share the produced cache.
type CacheFactory func(schema *Schema) Cache

// MemoryCacheFactory is the default cache factory.
func MemoryCacheFactory(*Schema) Cache {
	return NewMemoryCache()
}

// NoOpCacheFactory disables caching for every resource type.
func NoOpCacheFactory(*Schema) Cache {
	return NewNoOpCache()
}

// keyString normalizes a primary key value for use as a cache key. Numeric
// and string keys of equal rendering are deliberately equivalent, since both
// appear in URLs the same way.
func keyString(key any) string {
	if s, ok := key.(string); ok {
		return s
	}

	return fmt.Sprint(key)
}

// attrAlias builds the cache alias for a (field, value) lookup.
func attrAlias(attr string, value any) string {
	return attr + "=" + keyString(value)
}

// MemoryCache is the in-memory Cache implementation. A single mutex
// serializes all access.
type MemoryCache struct {
	mu        sync.Mutex
	instances map[string]*Resource
	aliases   map[string]string
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		instances: make(map[string]*Resource),
		aliases:   make(map[string]string),
	}
}

// Has implements Cache.Has.
func (c *MemoryCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.instances[c.resolve(key)]

	return ok
}

// Get implements Cache.Get.
func (c *MemoryCache) Get(key string) (*Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resource, ok := c.instances[c.resolve(key)]

	return resource, ok
}

// Put implements Cache.Put.
func (c *MemoryCache) Put(resource *Resource, aliases ...string) *Resource {
	key, extra, ok := resource.cacheIdentity()
	if !ok {
		return resource
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.instances[key] = resource

	for _, alias := range extra {
		c.aliases[alias] = key
	}

	for _, alias := range aliases {
		c.aliases[alias] = key
	}

	return resource
}

// Evict implements Cache.Evict.
func (c *MemoryCache) Evict(key string) (*Resource, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resource, ok := c.instances[key]
	delete(c.instances, key)

	return resource, ok
}

// Clear implements Cache.Clear.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.instances = make(map[string]*Resource)
	c.aliases = make(map[string]string)
}

// resolve maps an alias to its primary key. Callers hold the mutex.
func (c *MemoryCache) resolve(key string) string {
	if target, ok := c.aliases[key]; ok {
		return target
	}

	return key
}

// NoOpCache is a cache that stores nothing.
type NoOpCache struct{}

// NewNoOpCache creates a new no-op cache.
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Has always returns false.
func (c *NoOpCache) Has(string) bool { return false }

// Get always misses.
func (c *NoOpCache) Get(string) (*Resource, bool) { return nil, false }

// Put returns the resource without storing it.
func (c *NoOpCache) Put(resource *Resource, _ ...string) *Resource { return resource }

// Evict does nothing.
func (c *NoOpCache) Evict(string) (*Resource, bool) { return nil, false }

// Clear does nothing.
func (c *NoOpCache) Clear() {}
