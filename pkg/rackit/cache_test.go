package rackit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(schema *Schema) *ResourceManager {
	conn := NewConnection("http://api.test", nil)

	return newResourceManager(conn, schema, NewMemoryCache(), nil)
}

func TestMemoryCache_PutAndGet(t *testing.T) {
	t.Parallel()

	manager := testManager(&Schema{Name: "item", Endpoint: "/items"})
	cache := NewMemoryCache()

	resource := newResource(manager, map[string]any{"id": float64(1), "name": "one"}, false, "")

	cache.Put(resource)

	retrieved, ok := cache.Get("1")
	require.True(t, ok)
	assert.Same(t, resource, retrieved)
	assert.True(t, cache.Has("1"))
}

func TestMemoryCache_PathAlias(t *testing.T) {
	t.Parallel()

	manager := testManager(&Schema{Name: "item", Endpoint: "/items"})
	cache := NewMemoryCache()

	resource := newResource(manager, map[string]any{"id": float64(7)}, false, "")
	cache.Put(resource)

	// The canonical path is registered as an alias on Put.
	retrieved, ok := cache.Get("/items/7")
	require.True(t, ok)
	assert.Same(t, resource, retrieved)
}

func TestMemoryCache_CacheKeyAliases(t *testing.T) {
	t.Parallel()

	manager := testManager(&Schema{
		Name:      "server",
		Endpoint:  "/servers",
		CacheKeys: []string{"hostname"},
	})
	cache := NewMemoryCache()

	resource := newResource(manager, map[string]any{"id": float64(3), "hostname": "web-1"}, false, "")
	cache.Put(resource)

	retrieved, ok := cache.Get("hostname=web-1")
	require.True(t, ok)
	assert.Same(t, resource, retrieved)
}

func TestMemoryCache_PutReplaces(t *testing.T) {
	t.Parallel()

	manager := testManager(&Schema{Name: "item", Endpoint: "/items"})
	cache := NewMemoryCache()

	first := newResource(manager, map[string]any{"id": float64(1), "name": "old"}, false, "")
	second := newResource(manager, map[string]any{"id": float64(1), "name": "new"}, false, "")

	cache.Put(first)
	cache.Put(second)

	retrieved, ok := cache.Get("1")
	require.True(t, ok)
	assert.Same(t, second, retrieved)
}

func TestMemoryCache_Evict(t *testing.T) {
	t.Parallel()

	manager := testManager(&Schema{Name: "item", Endpoint: "/items"})
	cache := NewMemoryCache()

	resource := newResource(manager, map[string]any{"id": float64(1)}, false, "")
	cache.Put(resource)

	evicted, ok := cache.Evict("1")
	require.True(t, ok)
	assert.Same(t, resource, evicted)
	assert.False(t, cache.Has("1"))

	// A second evict finds nothing.
	_, ok = cache.Evict("1")
	assert.False(t, ok)
}

func TestMemoryCache_EvictIgnoresAliases(t *testing.T) {
	t.Parallel()

	manager := testManager(&Schema{Name: "item", Endpoint: "/items"})
	cache := NewMemoryCache()

	resource := newResource(manager, map[string]any{"id": float64(1)}, false, "")
	cache.Put(resource)

	// Eviction is by primary key only.
	_, ok := cache.Evict("/items/1")
	assert.False(t, ok)
	assert.True(t, cache.Has("1"))
}

func TestMemoryCache_Clear(t *testing.T) {
	t.Parallel()

	manager := testManager(&Schema{Name: "item", Endpoint: "/items"})
	cache := NewMemoryCache()

	cache.Put(newResource(manager, map[string]any{"id": float64(1)}, false, ""))
	cache.Put(newResource(manager, map[string]any{"id": float64(2)}, false, ""))

	cache.Clear()

	assert.False(t, cache.Has("1"))
	assert.False(t, cache.Has("2"))
}

func TestMemoryCache_MissingKeyResource(t *testing.T) {
	t.Parallel()

	manager := testManager(&Schema{Name: "item", Endpoint: "/items"})
	cache := NewMemoryCache()

	// A resource without a primary key cannot be stored.
	resource := newResource(manager, map[string]any{"name": "anonymous"}, false, "")
	cache.Put(resource)

	assert.False(t, cache.Has(""))
}

func TestNoOpCache(t *testing.T) {
	t.Parallel()

	manager := testManager(&Schema{Name: "item", Endpoint: "/items"})
	cache := NewNoOpCache()

	resource := newResource(manager, map[string]any{"id": float64(1)}, false, "")

	returned := cache.Put(resource)
	assert.Same(t, resource, returned)

	_, ok := cache.Get("1")
	assert.False(t, ok)
	assert.False(t, cache.Has("1"))

	_, ok = cache.Evict("1")
	assert.False(t, ok)
}

func TestKeyString(t *testing.T) {
	t.Parallel()

	// Numeric and string keys that render the same are equivalent, since
	// both appear in URLs identically.
	assert.Equal(t, "5", keyString(5))
	assert.Equal(t, "5", keyString(float64(5)))
	assert.Equal(t, "5", keyString("5"))
	assert.Equal(t, "abc", keyString("abc"))
}

func TestAttrAlias(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "name=web-1", attrAlias("name", "web-1"))
	assert.Equal(t, "port=22", attrAlias("port", 22))
}
