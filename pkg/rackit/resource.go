package rackit

import (
	"context"
	"fmt"
	"sync"
)

// Resource is one remote entity. Its data mapping never changes once the
// instance is full; all mutation produces a new instance through the owning
// manager. An instance constructed with partial knowledge fetches its full
// representation exactly once, on the first access to a field it does not
// hold, and the transition is irreversible.
type Resource struct {
	manager *ResourceManager
	path    string

	mu      sync.Mutex
	data    map[string]any
	partial bool
}

// newResource builds an instance. An empty path is derived from the
// manager's base path and the primary key when the key is known.
func newResource(manager *ResourceManager, data map[string]any, partial bool, path string) *Resource {
	resource := &Resource{
		manager: manager,
		data:    data,
		partial: partial,
		path:    path,
	}

	if resource.path == "" {
		if key, ok := data[manager.schema.PrimaryKey()]; ok {
			if derived, err := manager.urlFor(key); err == nil {
				resource.path = derived
			}
		}
	}

	return resource
}

func (r *Resource) schema() *Schema {
	return r.manager.schema
}

// PrimaryKey returns the resource's primary key value, when known.
func (r *Resource) PrimaryKey() (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.data[r.schema().PrimaryKey()]

	return key, ok
}

// Path returns the resource's request path: the override path when one was
// set, otherwise the path derived from the primary key. Empty when neither
// is known.
func (r *Resource) Path() string {
	return r.path
}

// IsPartial reports whether the instance still holds partial data.
func (r *Resource) IsPartial() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.partial
}

// Data returns a copy of the data mapping.
func (r *Resource) Data() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make(map[string]any, len(r.data))

	for name, value := range r.data {
		data[name] = value
	}

	return data
}

// Lookup returns the named field from local data only, resolving declared
// aliases. It never triggers network activity.
func (r *Resource) Lookup(name string) (any, bool) {
	field := r.schema().resolveAlias(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	value, ok := r.data[field]

	return value, ok
}

// Get returns the named field, resolving declared aliases. A field missing
// from a partial instance triggers exactly one synchronous fetch of the full
// representation; a field absent from a full instance — before or after that
// fetch — yields a MissingAttributeError with no repeated fetch.
func (r *Resource) Get(ctx context.Context, name string) (any, error) {
	field := r.schema().resolveAlias(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if value, ok := r.data[field]; ok {
		return value, nil
	}

	if !r.partial {
		return nil, &MissingAttributeError{Resource: r.schema().Name, Attribute: name}
	}

	if r.path == "" {
		return nil, fmt.Errorf("%s: %w", r.schema().Name, ErrNoPrimaryKey)
	}

	loaded, err := r.manager.load(ctx, r.path)
	if err != nil {
		return nil, err
	}

	r.data = loaded.Data()
	r.partial = false

	if value, ok := r.data[field]; ok {
		return value, nil
	}

	return nil, &MissingAttributeError{Resource: r.schema().Name, Attribute: name}
}

// MustGet is like Get but panics on error. Intended for fields the caller
// knows the representation carries.
func (r *Resource) MustGet(ctx context.Context, name string) any {
	value, err := r.Get(ctx, name)
	if err != nil {
		panic(err)
	}

	return value
}

// GetString returns the named field as a string.
func (r *Resource) GetString(ctx context.Context, name string) (string, error) {
	value, err := r.Get(ctx, name)
	if err != nil {
		return "", err
	}

	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s.%s: expected string, got %T", r.schema().Name, name, value)
	}

	return s, nil
}

// GetInt returns the named field as an int64. JSON numbers decode as
// float64; both forms are accepted.
func (r *Resource) GetInt(ctx context.Context, name string) (int64, error) {
	value, err := r.Get(ctx, name)
	if err != nil {
		return 0, err
	}

	switch v := value.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%s.%s: expected number, got %T", r.schema().Name, name, value)
	}
}

// Update delegates to the owning manager, producing a new instance; the
// receiver is left untouched.
func (r *Resource) Update(ctx context.Context, fields map[string]any) (*Resource, error) {
	return r.manager.Update(ctx, r, fields)
}

// Delete delegates to the owning manager.
func (r *Resource) Delete(ctx context.Context) error {
	return r.manager.Delete(ctx, r)
}

// Action executes a non-restful action endpoint on this resource.
func (r *Resource) Action(ctx context.Context, action string, fields map[string]any) error {
	return r.manager.Action(ctx, r, action, fields)
}

// Nested resolves a declared nested relation into a manager scoped under
// this resource. It requires the resource's primary key or override path,
// but never a full fetch.
func (r *Resource) Nested(name string) (*ResourceManager, error) {
	rel, err := r.relation(name, RelationNested)
	if err != nil {
		return nil, err
	}

	return r.NestedManager(rel.Target), nil
}

// NestedManager returns a manager for the given schema scoped under this
// resource, independent of declared relations. The manager shares the
// connection-wide cache for the target type.
func (r *Resource) NestedManager(schema *Schema) *ResourceManager {
	conn := r.manager.conn

	return newResourceManager(conn, schema, conn.cacheFor(schema), r)
}

// Embedded resolves a declared embedded relation from already-loaded data.
// It never triggers a network fetch: a source field absent from the local
// data yields a MissingAttributeError even on a partial instance. A null
// value resolves to nil. The produced instance is a read-only partial view;
// it is not cached and shares no manager-level identity with a fetched
// instance of the same type.
func (r *Resource) Embedded(name string) (*Resource, error) {
	rel, err := r.relation(name, RelationEmbedded)
	if err != nil {
		return nil, err
	}

	value, ok := r.Lookup(relationSource(name, rel))
	if !ok {
		return nil, &MissingAttributeError{Resource: r.schema().Name, Attribute: relationSource(name, rel)}
	}

	if value == nil {
		return nil, nil
	}

	data, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s.%s: expected object, got %T", r.schema().Name, name, value)
	}

	return r.relatedManager(rel.Target).makeInstance(data, true), nil
}

// EmbeddedList resolves a declared embedded-list relation from
// already-loaded data, with the same non-fetching semantics as Embedded.
func (r *Resource) EmbeddedList(name string) ([]*Resource, error) {
	rel, err := r.relation(name, RelationEmbeddedList)
	if err != nil {
		return nil, err
	}

	value, ok := r.Lookup(relationSource(name, rel))
	if !ok {
		return nil, &MissingAttributeError{Resource: r.schema().Name, Attribute: relationSource(name, rel)}
	}

	if value == nil {
		return nil, nil
	}

	raw, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%s.%s: expected list, got %T", r.schema().Name, name, value)
	}

	manager := r.relatedManager(rel.Target)
	resources := make([]*Resource, 0, len(raw))

	for _, item := range raw {
		data, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s.%s: expected list of objects, got %T element", r.schema().Name, name, item)
		}

		resources = append(resources, manager.makeInstance(data, true))
	}

	return resources, nil
}

// relatedManager returns the manager embedded instances hang off: the
// connection's root manager for the type when one exists, otherwise a
// detached manager sharing the connection-wide cache.
func (r *Resource) relatedManager(schema *Schema) *ResourceManager {
	conn := r.manager.conn

	if root, ok := conn.rootManager(schema); ok {
		return root
	}

	return newResourceManager(conn, schema, conn.cacheFor(schema), nil)
}

func (r *Resource) relation(name string, kind RelationKind) (Relation, error) {
	rel, ok := r.schema().Relations[name]
	if !ok {
		return Relation{}, fmt.Errorf("%s.%s: %w", r.schema().Name, name, ErrUnknownRelation)
	}

	if rel.Kind != kind {
		return Relation{}, fmt.Errorf("%s.%s is %s: %w", r.schema().Name, name, rel.Kind, ErrRelationKind)
	}

	return rel, nil
}

func relationSource(name string, rel Relation) string {
	if rel.Source != "" {
		return rel.Source
	}

	return name
}

// cacheIdentity returns the cache key and aliases for this instance: the
// primary key, the canonical path, and any declared CacheKeys values
// present in the data.
func (r *Resource) cacheIdentity() (string, []string, bool) {
	key, ok := r.PrimaryKey()
	if !ok {
		return "", nil, false
	}

	var aliases []string

	if r.path != "" {
		aliases = append(aliases, r.path)
	}

	for _, field := range r.schema().CacheKeys {
		if value, ok := r.Lookup(field); ok {
			aliases = append(aliases, attrAlias(field, value))
		}
	}

	return keyString(key), aliases, true
}

// String renders the resource type and data for diagnostics.
func (r *Resource) String() string {
	return fmt.Sprintf("%s(%v)", r.schema().Name, r.Data())
}
