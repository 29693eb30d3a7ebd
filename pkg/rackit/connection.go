package rackit

import (
	"context"
	"io"
	"net/url"
	"sync"
)

// Connection owns a Session and a base address, and exposes the single
// request primitive used by every manager. It performs no caching of its
// own, but holds the per-resource-type cache registry so that root and
// nested managers for the same resource type share one cache.
//
// A Connection is immutable after construction; one logical request
// pipeline runs per Connection.
type Connection struct {
	baseURL      string
	session      Session
	cacheFactory CacheFactory

	mu     sync.Mutex
	caches map[string]Cache
	roots  map[string]*ResourceManager
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithCacheFactory selects the cache implementation used for each resource
// type. The default is MemoryCacheFactory.
func WithCacheFactory(factory CacheFactory) ConnectionOption {
	return func(c *Connection) {
		c.cacheFactory = factory
	}
}

// NewConnection creates a connection from a base URL and a session.
func NewConnection(baseURL string, session Session, opts ...ConnectionOption) *Connection {
	conn := &Connection{
		baseURL:      trimSlash(baseURL),
		session:      session,
		cacheFactory: MemoryCacheFactory,
		caches:       make(map[string]Cache),
		roots:        make(map[string]*ResourceManager),
	}

	for _, opt := range opts {
		opt(conn)
	}

	return conn
}

// Dial creates a connection using the default session for the same base URL.
func Dial(baseURL string, opts ...SessionOption) *Connection {
	return NewConnection(baseURL, NewSession(baseURL, opts...))
}

// BaseURL returns the base address of the connection.
func (c *Connection) BaseURL() string {
	return c.baseURL
}

// Execute routes one request through the owned session. Transport failures
// are wrapped in a TransportError; HTTP status codes are not interpreted
// here — that is the manager's responsibility.
func (c *Connection) Execute(ctx context.Context, method, path string, query url.Values, body any) (*Response, error) {
	resp, err := c.session.Do(ctx, &Request{
		Method: method,
		Path:   path,
		Query:  query,
		Body:   body,
	})
	if err != nil {
		return nil, &TransportError{Method: method, URL: path, Err: err}
	}

	return resp, nil
}

// Root returns the manager for a resource type rooted at the connection.
// Managers are memoized per schema, so repeated calls return the same
// instance. Root panics on an invalid schema; schemas are static program
// data and a bad one is a programming error.
func (c *Connection) Root(schema *Schema) *ResourceManager {
	err := schema.Validate()
	if err != nil {
		panic(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if manager, ok := c.roots[schema.Name]; ok {
		return manager
	}

	manager := newResourceManager(c, schema, c.cacheForLocked(schema), nil)
	c.roots[schema.Name] = manager

	return manager
}

// Close closes the underlying session when it supports closing.
func (c *Connection) Close() error {
	if closer, ok := c.session.(io.Closer); ok {
		return closer.Close()
	}

	return nil
}

// rootManager returns the memoized root manager for a schema, if one has
// been created. Nested and embedded instances are reconciled through it so
// each resource type keeps one canonical identity per connection.
func (c *Connection) rootManager(schema *Schema) (*ResourceManager, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	manager, ok := c.roots[schema.Name]

	return manager, ok
}

// cacheFor returns the shared cache for a resource type, creating it on
// first use.
func (c *Connection) cacheFor(schema *Schema) Cache {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cacheForLocked(schema)
}

func (c *Connection) cacheForLocked(schema *Schema) Cache {
	if cache, ok := c.caches[schema.Name]; ok {
		return cache
	}

	cache := c.cacheFactory(schema)
	c.caches[schema.Name] = cache

	return cache
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}

	return s
}
