package rackit

import (
	"fmt"
	"net/http"

	"gopkg.in/yaml.v3"
)

// RelationKind identifies how a declared relation is resolved.
type RelationKind string

const (
	// RelationNested resolves to a manager whose base path is the parent
	// resource's path joined with the target schema's endpoint.
	RelationNested RelationKind = "nested"

	// RelationEmbedded resolves a sub-object already present in the parent's
	// data into a single resource, with no network activity.
	RelationEmbedded RelationKind = "embedded"

	// RelationEmbeddedList resolves a list of sub-objects already present in
	// the parent's data, with no network activity.
	RelationEmbeddedList RelationKind = "embedded_list"
)

// Relation declares a named link from one resource type to another. Nested
// relations produce scoped managers; embedded relations decode sub-objects
// from already-loaded data.
type Relation struct {
	Kind   RelationKind
	Target *Schema

	// Source is the data field holding the embedded representation. It
	// defaults to the relation's declared name. Ignored for nested relations.
	Source string
}

// ListExtractor decodes one page of a list response into raw item mappings
// and an optional pointer (URL) to the next page. An empty pointer
// terminates the iteration.
type ListExtractor func(resp *Response) (items []map[string]any, next string, err error)

// Schema carries the per-resource-type metadata consumed by managers. The
// zero value of every optional field selects a sensible default, so a
// minimal schema is just a Name and an Endpoint.
type Schema struct {
	// Name identifies the resource type in errors and cache registries.
	Name string `yaml:"name"`

	// Endpoint is the resource's path relative to the connection base URL
	// (or to the parent resource's path, for nested access).
	Endpoint string `yaml:"endpoint"`

	// PrimaryKeyField is the data field used in URLs and as the cache key.
	// Defaults to "id".
	PrimaryKeyField string `yaml:"primary_key"`

	// Aliases maps accessor names to data field names, so callers can use a
	// stable name even when the wire format differs.
	Aliases map[string]string `yaml:"aliases"`

	// CacheKeys lists additional unique fields whose values are registered
	// as cache aliases, saving fetches for lookups by those fields.
	CacheKeys []string `yaml:"cache_keys"`

	// UpdateVerb is the HTTP method used for updates. Defaults to PATCH.
	UpdateVerb string `yaml:"update_verb"`

	// ListPartial marks list results as partial entities that lazily load
	// their full representation on first unknown-field access.
	ListPartial bool `yaml:"list_partial"`

	// ListKey, NextKey and ItemKey configure the default response
	// extractors for APIs that wrap payloads in an envelope. With all three
	// empty, a list response is the whole body and a single response is the
	// whole object.
	ListKey string `yaml:"list_key"`
	NextKey string `yaml:"next_key"`
	ItemKey string `yaml:"item_key"`

	// Relations declares named nested and embedded links to other schemas.
	Relations map[string]Relation `yaml:"-"`

	// ListExtractor overrides the page decoding entirely. Takes precedence
	// over ListKey/NextKey.
	ListExtractor ListExtractor `yaml:"-"`
}

// Validate checks that the schema is usable by a manager.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return ErrSchemaNameRequired
	}

	if s.Endpoint == "" {
		return fmt.Errorf("schema %q: %w", s.Name, ErrEndpointRequired)
	}

	return nil
}

// PrimaryKey returns the primary key field, defaulting to "id".
func (s *Schema) PrimaryKey() string {
	if s.PrimaryKeyField != "" {
		return s.PrimaryKeyField
	}

	return "id"
}

// updateVerb returns the HTTP method used for updates.
func (s *Schema) updateVerb() string {
	if s.UpdateVerb != "" {
		return s.UpdateVerb
	}

	return http.MethodPatch
}

// resolveAlias maps an accessor name to the underlying data field.
func (s *Schema) resolveAlias(name string) string {
	if target, ok := s.Aliases[name]; ok {
		return target
	}

	return name
}

// schemaDoc is the YAML representation of a schema set.
type schemaDoc struct {
	Schemas []*schemaEntry `yaml:"schemas"`
}

type schemaEntry struct {
	Schema    `yaml:",inline"`
	Relations map[string]relationEntry `yaml:"relations"`
}

type relationEntry struct {
	Kind   RelationKind `yaml:"kind"`
	Target string       `yaml:"target"`
	Source string       `yaml:"source"`
}

// SchemasFromYAML parses a document declaring one or more schemas, keyed by
// name. Relation targets are resolved by name within the document, so
// mutually-referencing schemas can be declared in one place:
//
//	schemas:
//	  - name: server
//	    endpoint: /servers
//	    relations:
//	      disks: {kind: nested, target: disk}
//	  - name: disk
//	    endpoint: /disks
func SchemasFromYAML(data []byte) (map[string]*Schema, error) {
	var doc schemaDoc

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("parsing schema document: %w", err)
	}

	schemas := make(map[string]*Schema, len(doc.Schemas))

	for _, entry := range doc.Schemas {
		schema := entry.Schema

		err := schema.Validate()
		if err != nil {
			return nil, err
		}

		if _, ok := schemas[schema.Name]; ok {
			return nil, fmt.Errorf("schema %q: declared twice", schema.Name)
		}

		schemas[schema.Name] = &schema
	}

	// Resolve relation targets once every schema is known.
	for _, entry := range doc.Schemas {
		if len(entry.Relations) == 0 {
			continue
		}

		schema := schemas[entry.Schema.Name]
		schema.Relations = make(map[string]Relation, len(entry.Relations))

		for name, rel := range entry.Relations {
			target, ok := schemas[rel.Target]
			if !ok {
				return nil, fmt.Errorf("schema %q: relation %q: unknown target %q", schema.Name, name, rel.Target)
			}

			kind := rel.Kind
			if kind == "" {
				kind = RelationNested
			}

			schema.Relations[name] = Relation{Kind: kind, Target: target, Source: rel.Source}
		}
	}

	return schemas, nil
}

// SchemaFromYAML parses a document declaring a single schema. Relations
// require SchemasFromYAML, since their targets resolve by name.
func SchemaFromYAML(data []byte) (*Schema, error) {
	var entry schemaEntry

	err := yaml.Unmarshal(data, &entry)
	if err != nil {
		return nil, fmt.Errorf("parsing schema document: %w", err)
	}

	if len(entry.Relations) > 0 {
		return nil, fmt.Errorf("schema %q: relations require SchemasFromYAML", entry.Schema.Name)
	}

	schema := entry.Schema

	err = schema.Validate()
	if err != nil {
		return nil, err
	}

	return &schema, nil
}
