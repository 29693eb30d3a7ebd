package rackit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ResourceManager orchestrates requests for one resource type and caches the
// instances it fetches. Root managers are obtained from Connection.Root;
// nested managers from Resource.Nested, which scopes the base path under the
// parent resource.
type ResourceManager struct {
	conn   *Connection
	schema *Schema
	cache  Cache
	parent *Resource
}

func newResourceManager(conn *Connection, schema *Schema, cache Cache, parent *Resource) *ResourceManager {
	manager := &ResourceManager{
		conn:   conn,
		schema: schema,
		cache:  cache,
		parent: parent,
	}

	// Representation-storing caches need a way back to live instances.
	if binder, ok := cache.(hydratorBinder); ok {
		binder.bind(manager)
	}

	return manager
}

// Schema returns the resource type metadata the manager serves.
func (m *ResourceManager) Schema() *Schema {
	return m.schema
}

// Connection returns the owning connection.
func (m *ResourceManager) Connection() *Connection {
	return m.conn
}

// Parent returns the parent resource for a nested manager, or nil.
func (m *ResourceManager) Parent() *Resource {
	return m.parent
}

// All returns a lazy iterator over every instance of the resource type. No
// request is made until the iterator is advanced; advancing past the end of
// one page triggers exactly one request for the next. Calling All again
// restarts from page one.
func (m *ResourceManager) All(ctx context.Context, params url.Values) *Iterator {
	return newIterator(ctx, m, params)
}

// Get returns the instance with the given primary key. A cached full
// instance is returned without network activity; otherwise the resource is
// fetched, cached and returned. A backend 404 yields a NotFoundError
// carrying the key, and the cache is not populated.
func (m *ResourceManager) Get(ctx context.Context, key any) (*Resource, error) {
	if resource, ok := m.cache.Get(keyString(key)); ok {
		return resource, nil
	}

	return m.fetch(ctx, key)
}

// Refresh fetches the target's representation from the backend even when a
// cached instance exists, replacing the cache entry with a new full
// instance. Any prior instance is left untouched.
func (m *ResourceManager) Refresh(ctx context.Context, target any) (*Resource, error) {
	return m.fetch(ctx, target)
}

func (m *ResourceManager) fetch(ctx context.Context, target any) (*Resource, error) {
	path, err := m.urlFor(target)
	if err != nil {
		return nil, err
	}

	resp, err := m.conn.Execute(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", m.schema.Name, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Resource: m.schema.Name, Key: target}
	}

	err = checkResponse(resp, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	data, err := m.extractOne(resp)
	if err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", m.schema.Name, err)
	}

	return m.makeInstance(data, false, path), nil
}

// GetLazy returns a reference to the instance with the given primary key
// without any network activity: a cached instance when one exists, otherwise
// a partial instance that fetches its full representation on first
// unknown-field access. Useful for reaching nested resources or actions
// without paying for a fetch of the parent.
func (m *ResourceManager) GetLazy(key any) *Resource {
	if resource, ok := m.cache.Get(keyString(key)); ok {
		return resource
	}

	return m.makeInstance(map[string]any{m.schema.PrimaryKey(): key}, true)
}

// PartialAt returns a synthetic partial instance anchored at an explicit
// path, for singleton or otherwise unconventional endpoints whose location
// cannot be derived from a primary key.
func (m *ResourceManager) PartialAt(path string) *Resource {
	return newResource(m, map[string]any{}, true, path)
}

// Create issues a create request with the given fields as body, then
// decodes, caches and returns the new full instance.
func (m *ResourceManager) Create(ctx context.Context, fields map[string]any) (*Resource, error) {
	base, err := m.basePath()
	if err != nil {
		return nil, err
	}

	resp, err := m.conn.Execute(ctx, http.MethodPost, base, nil, m.prepareFields(fields))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", m.schema.Name, err)
	}

	err = checkResponse(resp, http.MethodPost, base)
	if err != nil {
		return nil, err
	}

	data, err := m.extractOne(resp)
	if err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", m.schema.Name, err)
	}

	return m.makeInstance(data, false), nil
}

// Update issues a partial-update request against the target — a primary key
// or a Resource — and returns a new instance decoded from the response. The
// cache entry for the key is replaced; any prior instance is left untouched.
// The target path is derived without fetching: a known primary key (or an
// override path) is enough.
func (m *ResourceManager) Update(ctx context.Context, target any, fields map[string]any) (*Resource, error) {
	path, err := m.urlFor(target)
	if err != nil {
		return nil, err
	}

	verb := m.schema.updateVerb()

	resp, err := m.conn.Execute(ctx, verb, path, nil, m.prepareFields(fields))
	if err != nil {
		return nil, fmt.Errorf("updating %s: %w", m.schema.Name, err)
	}

	err = checkResponse(resp, verb, path)
	if err != nil {
		return nil, err
	}

	data, err := m.extractOne(resp)
	if err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", m.schema.Name, err)
	}

	return m.makeInstance(data, false), nil
}

// Delete issues a delete request against the target and removes any cached
// entry for its key. Whatever the backend returns for a repeated delete is
// surfaced unchanged.
func (m *ResourceManager) Delete(ctx context.Context, target any) error {
	path, err := m.urlFor(target)
	if err != nil {
		return err
	}

	resp, err := m.conn.Execute(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", m.schema.Name, err)
	}

	err = checkResponse(resp, http.MethodDelete, path)
	if err != nil {
		return err
	}

	m.cache.Evict(m.keyOf(target))

	return nil
}

// Action executes a non-restful action endpoint (POST to path/action) on the
// target. The cached entry is evicted afterwards, since action endpoints
// cannot be relied on to return a representation.
func (m *ResourceManager) Action(ctx context.Context, target any, action string, fields map[string]any) error {
	path, err := m.urlFor(target)
	if err != nil {
		return err
	}

	path = joinPath(path, action)

	resp, err := m.conn.Execute(ctx, http.MethodPost, path, nil, m.prepareFields(fields))
	if err != nil {
		return fmt.Errorf("executing %s on %s: %w", action, m.schema.Name, err)
	}

	err = checkResponse(resp, http.MethodPost, path)
	if err != nil {
		return err
	}

	m.cache.Evict(m.keyOf(target))

	return nil
}

// FindBy returns the first instance whose attribute matches the given value.
// It checks the cache under the (attr, value) alias first, then scans a
// filtered list, caching the hit under the alias. Partial list entries are
// loaded before comparison; candidates without the attribute are skipped.
func (m *ResourceManager) FindBy(ctx context.Context, attr string, value any) (*Resource, error) {
	alias := attrAlias(attr, value)

	if resource, ok := m.cache.Get(alias); ok {
		return resource, nil
	}

	field := m.schema.resolveAlias(attr)
	params := url.Values{field: []string{keyString(value)}}

	it := m.All(ctx, params)

	for {
		resource, err := it.Next()
		if err == ErrNoMoreItems {
			return nil, &NotFoundError{Resource: m.schema.Name, Key: alias}
		}

		if err != nil {
			return nil, err
		}

		// Field access, not a local lookup: partial list entries load
		// their full representation before being compared.
		found, err := resource.Get(ctx, attr)
		if err != nil {
			if IsMissingAttribute(err) {
				continue
			}

			return nil, err
		}

		if keyString(found) == keyString(value) {
			return m.cache.Put(resource, alias), nil
		}
	}
}

// basePath returns the manager's base path: the schema endpoint, prefixed by
// the parent resource's path for nested managers. Accessing a nested manager
// requires the parent's primary key or override path, but not a full fetch.
func (m *ResourceManager) basePath() (string, error) {
	if m.parent == nil {
		return m.schema.Endpoint, nil
	}

	parentPath := m.parent.Path()
	if parentPath == "" {
		return "", fmt.Errorf("%s parent of nested %s: %w", m.parent.schema().Name, m.schema.Name, ErrNoPrimaryKey)
	}

	return joinPath(parentPath, m.schema.Endpoint), nil
}

// urlFor derives the request path for a primary key or Resource target.
func (m *ResourceManager) urlFor(target any) (string, error) {
	if resource, ok := target.(*Resource); ok {
		path := resource.Path()
		if path == "" {
			return "", fmt.Errorf("%s: %w", m.schema.Name, ErrNoPrimaryKey)
		}

		return path, nil
	}

	base, err := m.basePath()
	if err != nil {
		return "", err
	}

	return joinPath(base, keyString(target)), nil
}

// keyOf normalizes a primary key or Resource target to a cache key.
func (m *ResourceManager) keyOf(target any) string {
	if resource, ok := target.(*Resource); ok {
		if key, ok := resource.PrimaryKey(); ok {
			return keyString(key)
		}

		return resource.Path()
	}

	return keyString(target)
}

// makeInstance builds a resource from decoded data. Instances are
// reconciled through the connection's root manager for the type when one
// exists, so a resource first seen through a nested path shares identity
// with the canonical one. Full instances are cached; partial instances are
// not.
func (m *ResourceManager) makeInstance(data map[string]any, partial bool, aliases ...string) *Resource {
	owner := m
	if root, ok := m.conn.rootManager(m.schema); ok {
		owner = root
	}

	resource := newResource(owner, data, partial, "")
	if partial {
		return resource
	}

	return owner.cache.Put(resource, aliases...)
}

// hydrate implements the hydrator interface for representation-storing
// caches. The rebuilt instance is full and is not re-cached.
func (m *ResourceManager) hydrate(data map[string]any, path string) *Resource {
	return newResource(m, data, false, path)
}

// load fetches the full representation at an explicit path, used by the
// partial→full transition. The fetched path is registered as a cache alias
// so lazy instances at override paths resolve to the canonical entry.
func (m *ResourceManager) load(ctx context.Context, path string) (*Resource, error) {
	if resource, ok := m.cache.Get(path); ok {
		return resource, nil
	}

	resp, err := m.conn.Execute(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", m.schema.Name, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, &NotFoundError{Resource: m.schema.Name, Key: path}
	}

	err = checkResponse(resp, http.MethodGet, path)
	if err != nil {
		return nil, err
	}

	data, err := m.extractOne(resp)
	if err != nil {
		return nil, fmt.Errorf("parsing %s response: %w", m.schema.Name, err)
	}

	return m.makeInstance(data, false, path), nil
}

// fetchPage requests one page and decodes it into raw item mappings plus the
// next-page pointer, if any.
func (m *ResourceManager) fetchPage(ctx context.Context, pageURL string, params url.Values) ([]map[string]any, string, error) {
	resp, err := m.conn.Execute(ctx, http.MethodGet, pageURL, params, nil)
	if err != nil {
		return nil, "", fmt.Errorf("listing %s: %w", m.schema.Name, err)
	}

	err = checkResponse(resp, http.MethodGet, pageURL)
	if err != nil {
		return nil, "", err
	}

	items, next, err := m.extractList(resp)
	if err != nil {
		return nil, "", fmt.Errorf("parsing %s list response: %w", m.schema.Name, err)
	}

	return items, next, nil
}

// extractList decodes a page response. The schema's ListExtractor wins; with
// ListKey set the body is an envelope holding the items (and optionally a
// next pointer under NextKey); otherwise the whole body is the item list and
// there is no further page.
func (m *ResourceManager) extractList(resp *Response) ([]map[string]any, string, error) {
	if m.schema.ListExtractor != nil {
		return m.schema.ListExtractor(resp)
	}

	if m.schema.ListKey == "" {
		var items []map[string]any

		err := json.Unmarshal(resp.Body, &items)
		if err != nil {
			return nil, "", err
		}

		return items, "", nil
	}

	var envelope map[string]json.RawMessage

	err := json.Unmarshal(resp.Body, &envelope)
	if err != nil {
		return nil, "", err
	}

	var items []map[string]any

	if raw, ok := envelope[m.schema.ListKey]; ok {
		err = json.Unmarshal(raw, &items)
		if err != nil {
			return nil, "", err
		}
	}

	var next string

	if m.schema.NextKey != "" {
		if raw, ok := envelope[m.schema.NextKey]; ok {
			// A null or non-string pointer means no further page.
			_ = json.Unmarshal(raw, &next)
		}
	}

	return items, next, nil
}

// extractOne decodes a single-instance response, unwrapping the schema's
// ItemKey envelope when declared.
func (m *ResourceManager) extractOne(resp *Response) (map[string]any, error) {
	var data map[string]any

	err := json.Unmarshal(resp.Body, &data)
	if err != nil {
		return nil, err
	}

	if m.schema.ItemKey != "" {
		inner, ok := data[m.schema.ItemKey].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("response has no %q object", m.schema.ItemKey)
		}

		data = inner
	}

	return data, nil
}

// prepareFields de-references declared aliases in request fields.
func (m *ResourceManager) prepareFields(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}

	prepared := make(map[string]any, len(fields))

	for name, value := range fields {
		prepared[m.schema.resolveAlias(name)] = value
	}

	return prepared
}

// checkResponse converts a non-2xx response into an HTTPError.
func checkResponse(resp *Response, method, url string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return &HTTPError{
		StatusCode: resp.StatusCode,
		Method:     method,
		URL:        url,
		Body:       resp.Body,
	}
}

func joinPath(base, segment string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(segment, "/")
}
