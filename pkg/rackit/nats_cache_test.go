package rackit

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKVEntry struct {
	key   string
	value []byte
}

func (e *fakeKVEntry) Bucket() string                  { return "test" }
func (e *fakeKVEntry) Key() string                     { return e.key }
func (e *fakeKVEntry) Value() []byte                   { return e.value }
func (e *fakeKVEntry) Revision() uint64                { return 1 }
func (e *fakeKVEntry) Created() time.Time              { return time.Time{} }
func (e *fakeKVEntry) Delta() uint64                   { return 0 }
func (e *fakeKVEntry) Operation() nats.KeyValueOp      { return nats.KeyValuePut }

type fakeKV struct {
	entries map[string][]byte
}

func newFakeKV() *fakeKV {
	return &fakeKV{entries: make(map[string][]byte)}
}

func (f *fakeKV) Get(key string) (nats.KeyValueEntry, error) {
	value, ok := f.entries[key]
	if !ok {
		return nil, nats.ErrKeyNotFound
	}

	return &fakeKVEntry{key: key, value: value}, nil
}

func (f *fakeKV) Put(key string, value []byte) (uint64, error) {
	f.entries[key] = value

	return 1, nil
}

func (f *fakeKV) Delete(key string, opts ...nats.DeleteOpt) error {
	delete(f.entries, key)

	return nil
}

func (f *fakeKV) Keys(opts ...nats.WatchOpt) ([]string, error) {
	keys := make([]string, 0, len(f.entries))
	for key := range f.entries {
		keys = append(keys, key)
	}

	return keys, nil
}

func natsTestCache(t *testing.T, schema *Schema) (*NATSKVCache, *ResourceManager, *fakeKV) {
	t.Helper()

	kv := newFakeKV()
	cache := &NATSKVCache{kv: kv, prefix: schema.Name}

	conn := NewConnection("http://api.test", nil)
	manager := newResourceManager(conn, schema, cache, nil)

	return cache, manager, kv
}

func TestNATSKVCache_PutAndGet(t *testing.T) {
	t.Parallel()

	schema := &Schema{Name: "item", Endpoint: "/items"}
	cache, manager, _ := natsTestCache(t, schema)

	stored := manager.makeInstance(map[string]any{"id": "7", "name": "seven"}, false)

	// Entries are representations, not live instances: a Get rehydrates a
	// fresh Resource carrying the same data.
	loaded, ok := cache.Get("7")
	require.True(t, ok)
	assert.NotSame(t, stored, loaded)
	assert.Equal(t, stored.Data(), loaded.Data())
	assert.Equal(t, "/items/7", loaded.Path())
	assert.False(t, loaded.IsPartial())

	assert.True(t, cache.Has("7"))
	assert.False(t, cache.Has("8"))
}

func TestNATSKVCache_AliasRedirect(t *testing.T) {
	t.Parallel()

	schema := &Schema{Name: "item", Endpoint: "/items", CacheKeys: []string{"hostname"}}
	cache, manager, _ := natsTestCache(t, schema)

	manager.makeInstance(map[string]any{"id": "7", "hostname": "web-1"}, false)

	// Both the path alias and the declared cache key redirect to the
	// primary entry.
	byPath, ok := cache.Get("/items/7")
	require.True(t, ok)

	key, _ := byPath.PrimaryKey()
	assert.Equal(t, "7", key)

	byHostname, ok := cache.Get("hostname=web-1")
	require.True(t, ok)

	key, _ = byHostname.PrimaryKey()
	assert.Equal(t, "7", key)
}

func TestNATSKVCache_Evict(t *testing.T) {
	t.Parallel()

	schema := &Schema{Name: "item", Endpoint: "/items"}
	cache, manager, _ := natsTestCache(t, schema)

	manager.makeInstance(map[string]any{"id": "7"}, false)

	evicted, ok := cache.Evict("7")
	require.True(t, ok)
	require.NotNil(t, evicted)

	_, ok = cache.Get("7")
	assert.False(t, ok)

	// Stale alias entries read as misses once the primary entry is gone.
	_, ok = cache.Get("/items/7")
	assert.False(t, ok)

	_, ok = cache.Evict("7")
	assert.False(t, ok)
}

func TestNATSKVCache_ClearScopedToPrefix(t *testing.T) {
	t.Parallel()

	schema := &Schema{Name: "item", Endpoint: "/items"}
	cache, manager, kv := natsTestCache(t, schema)

	manager.makeInstance(map[string]any{"id": "7"}, false)

	// An entry from another resource type's namespace survives.
	_, err := kv.Put("other.1", []byte(`{"data":{"id":"1"}}`))
	require.NoError(t, err)

	cache.Clear()

	_, ok := cache.Get("7")
	assert.False(t, ok)
	assert.Contains(t, kv.entries, "other.1")
}

func TestNATSKVCache_PartialNotStored(t *testing.T) {
	t.Parallel()

	schema := &Schema{Name: "item", Endpoint: "/items"}
	cache, manager, kv := natsTestCache(t, schema)

	manager.makeInstance(map[string]any{"id": "7"}, true)

	assert.Empty(t, kv.entries)

	_, ok := cache.Get("7")
	assert.False(t, ok)
}

func TestNATSKVCache_UnboundGetMisses(t *testing.T) {
	t.Parallel()

	cache := &NATSKVCache{kv: newFakeKV(), prefix: "item"}

	_, ok := cache.Get("7")
	assert.False(t, ok)
}

func TestSanitizeKVKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "7", sanitizeKVKey("7"))
	assert.Equal(t, "hostname=web-1", sanitizeKVKey("hostname=web-1"))
	assert.Equal(t, "_items_7", sanitizeKVKey("/items/7"))
}

func TestNATSKVCacheFactory_BucketRequired(t *testing.T) {
	t.Parallel()

	_, err := NATSKVCacheFactory(&NATSKVConfig{})
	require.Error(t, err)

	_, err = NewNATSKVCache(&NATSKVConfig{Prefix: "item"})
	require.ErrorIs(t, err, errNATSBucketRequired)
}

func TestNewNATSKVCache_PrefixRequired(t *testing.T) {
	t.Parallel()

	// An empty prefix would produce ".<key>" store keys, which NATS KV
	// rejects, silently disabling the cache.
	_, err := NewNATSKVCache(&NATSKVConfig{Bucket: "cache"})
	require.ErrorIs(t, err, errNATSPrefixRequired)
}
