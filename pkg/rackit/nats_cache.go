package rackit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSKVConfig configures the NATS JetStream key-value cache backend.
type NATSKVConfig struct {
	// URL is the NATS server URL. Ignored when Conn is set.
	URL string

	// Conn is an existing NATS connection to reuse. When nil, a connection
	// is dialed from URL.
	Conn *nats.Conn

	// Bucket is the key-value bucket name. Created if it does not exist.
	Bucket string

	// TTL bounds the lifetime of cached representations. Zero means no
	// expiry.
	TTL time.Duration

	// Prefix namespaces keys within the bucket. Required by NewNATSKVCache;
	// the cache factory sets it to the schema name.
	Prefix string
}

var (
	errNATSBucketRequired = errors.New("NATS KV bucket is required")
	errNATSPrefixRequired = errors.New("NATS KV key prefix is required")
)

// kvEnvelope is the stored representation of a cache entry. Alias entries
// redirect to the primary entry instead of duplicating the data.
type kvEnvelope struct {
	Data     map[string]any `json:"data,omitempty"`
	Path     string         `json:"path,omitempty"`
	AliasFor string         `json:"alias_for,omitempty"`
}

// hydrator rebuilds a live Resource from a cached representation. The
// owning manager installs itself when the cache is bound.
type hydrator interface {
	hydrate(data map[string]any, path string) *Resource
}

// hydratorBinder is implemented by caches that store representations rather
// than live instances and so need a way back to Resource values.
type hydratorBinder interface {
	bind(h hydrator)
}

// kvStore is the slice of nats.KeyValue the cache uses.
type kvStore interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Keys(opts ...nats.WatchOpt) ([]string, error)
}

// NATSKVCache caches resource representations in a NATS JetStream key-value
// bucket, so independent processes sharing the bucket see each other's
// fetches. Entries hold decoded data, not live instances; a Get rehydrates
// through the owning manager.
type NATSKVCache struct {
	kv     kvStore
	prefix string
	owner  hydrator
}

// NewNATSKVCache connects to NATS (or reuses cfg.Conn) and opens the
// configured bucket, creating it when absent. A prefix is required: the
// "<prefix>.<key>" store keys would be invalid NATS KV keys without one.
func NewNATSKVCache(cfg *NATSKVConfig) (*NATSKVCache, error) {
	if cfg.Prefix == "" {
		return nil, errNATSPrefixRequired
	}

	kv, err := openKV(cfg)
	if err != nil {
		return nil, err
	}

	return &NATSKVCache{kv: kv, prefix: cfg.Prefix}, nil
}

// NATSKVCacheFactory dials NATS once and returns a CacheFactory that gives
// each resource type its own key namespace within the shared bucket.
func NATSKVCacheFactory(cfg *NATSKVConfig) (CacheFactory, error) {
	kv, err := openKV(cfg)
	if err != nil {
		return nil, err
	}

	return func(schema *Schema) Cache {
		return &NATSKVCache{kv: kv, prefix: schema.Name}
	}, nil
}

func openKV(cfg *NATSKVConfig) (nats.KeyValue, error) {
	if cfg.Bucket == "" {
		return nil, errNATSBucketRequired
	}

	conn := cfg.Conn

	if conn == nil {
		var err error

		conn, err = nats.Connect(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("connecting to NATS: %w", err)
		}
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("obtaining JetStream context: %w", err)
	}

	kv, err := js.KeyValue(cfg.Bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket: cfg.Bucket,
			TTL:    cfg.TTL,
		})
	}

	if err != nil {
		return nil, fmt.Errorf("opening KV bucket %q: %w", cfg.Bucket, err)
	}

	return kv, nil
}

// bind implements hydratorBinder.
func (c *NATSKVCache) bind(h hydrator) {
	if c.owner == nil {
		c.owner = h
	}
}

// Has implements Cache.Has.
func (c *NATSKVCache) Has(key string) bool {
	_, ok := c.lookup(key)

	return ok
}

// Get implements Cache.Get.
func (c *NATSKVCache) Get(key string) (*Resource, bool) {
	if c.owner == nil {
		return nil, false
	}

	envelope, ok := c.lookup(key)
	if !ok {
		return nil, false
	}

	return c.owner.hydrate(envelope.Data, envelope.Path), true
}

// Put implements Cache.Put.
func (c *NATSKVCache) Put(resource *Resource, aliases ...string) *Resource {
	key, extra, ok := resource.cacheIdentity()
	if !ok {
		return resource
	}

	payload, err := json.Marshal(&kvEnvelope{Data: resource.Data(), Path: resource.Path()})
	if err != nil {
		return resource
	}

	_, err = c.kv.Put(c.storeKey(key), payload)
	if err != nil {
		return resource
	}

	redirect, _ := json.Marshal(&kvEnvelope{AliasFor: key})

	for _, alias := range append(extra, aliases...) {
		_, _ = c.kv.Put(c.storeKey(alias), redirect)
	}

	return resource
}

// Evict implements Cache.Evict. Alias entries are left behind; they redirect
// to a key that no longer resolves, which reads as a miss.
func (c *NATSKVCache) Evict(key string) (*Resource, bool) {
	resource, ok := c.Get(key)

	_ = c.kv.Delete(c.storeKey(key))

	return resource, ok
}

// Clear implements Cache.Clear for this cache's key namespace.
func (c *NATSKVCache) Clear() {
	keys, err := c.kv.Keys()
	if err != nil {
		return
	}

	prefix := c.storeKey("")

	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			_ = c.kv.Delete(key)
		}
	}
}

// lookup fetches an envelope, following at most one alias redirect.
func (c *NATSKVCache) lookup(key string) (*kvEnvelope, bool) {
	envelope, ok := c.fetch(key)
	if !ok {
		return nil, false
	}

	if envelope.AliasFor != "" {
		return c.fetch(envelope.AliasFor)
	}

	return envelope, true
}

func (c *NATSKVCache) fetch(key string) (*kvEnvelope, bool) {
	entry, err := c.kv.Get(c.storeKey(key))
	if err != nil {
		return nil, false
	}

	var envelope kvEnvelope

	err = json.Unmarshal(entry.Value(), &envelope)
	if err != nil {
		return nil, false
	}

	return &envelope, true
}

func (c *NATSKVCache) storeKey(key string) string {
	return sanitizeKVKey(c.prefix) + "." + sanitizeKVKey(key)
}

// sanitizeKVKey maps arbitrary cache keys onto the NATS KV key alphabet.
func sanitizeKVKey(key string) string {
	var b strings.Builder

	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '=':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	return b.String()
}
