package rackit_test

import (
	"testing"

	"github.com/stackhpc/rackit/pkg/rackit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		schema  *rackit.Schema
		wantErr error
	}{
		{
			name:   "valid",
			schema: &rackit.Schema{Name: "item", Endpoint: "/items"},
		},
		{
			name:    "missing name",
			schema:  &rackit.Schema{Endpoint: "/items"},
			wantErr: rackit.ErrSchemaNameRequired,
		},
		{
			name:    "missing endpoint",
			schema:  &rackit.Schema{Name: "item"},
			wantErr: rackit.ErrEndpointRequired,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.schema.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestSchemaDefaults(t *testing.T) {
	t.Parallel()

	schema := &rackit.Schema{Name: "item", Endpoint: "/items"}
	assert.Equal(t, "id", schema.PrimaryKey())

	schema.PrimaryKeyField = "uuid"
	assert.Equal(t, "uuid", schema.PrimaryKey())
}

func TestSchemasFromYAML(t *testing.T) {
	t.Parallel()

	doc := []byte(`
schemas:
  - name: server
    endpoint: /servers
    cache_keys: [hostname]
    list_key: servers
    next_key: next
    relations:
      disks:
        kind: nested
        target: disk
      flavor:
        kind: embedded
        target: flavor
  - name: disk
    endpoint: /disks
  - name: flavor
    endpoint: /flavors
    primary_key: name
    update_verb: PUT
`)

	schemas, err := rackit.SchemasFromYAML(doc)
	require.NoError(t, err)
	require.Len(t, schemas, 3)

	server := schemas["server"]
	require.NotNil(t, server)
	assert.Equal(t, "/servers", server.Endpoint)
	assert.Equal(t, []string{"hostname"}, server.CacheKeys)
	assert.Equal(t, "servers", server.ListKey)

	// Relation targets are resolved to the parsed schema values.
	disks := server.Relations["disks"]
	assert.Equal(t, rackit.RelationNested, disks.Kind)
	assert.Same(t, schemas["disk"], disks.Target)

	flavor := server.Relations["flavor"]
	assert.Equal(t, rackit.RelationEmbedded, flavor.Kind)
	assert.Same(t, schemas["flavor"], flavor.Target)

	assert.Equal(t, "name", schemas["flavor"].PrimaryKey())
	assert.Equal(t, "PUT", schemas["flavor"].UpdateVerb)
}

func TestSchemasFromYAML_UnknownTarget(t *testing.T) {
	t.Parallel()

	doc := []byte(`
schemas:
  - name: server
    endpoint: /servers
    relations:
      disks:
        kind: nested
        target: disk
`)

	_, err := rackit.SchemasFromYAML(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk")
}

func TestSchemasFromYAML_Duplicate(t *testing.T) {
	t.Parallel()

	doc := []byte(`
schemas:
  - name: server
    endpoint: /servers
  - name: server
    endpoint: /servers
`)

	_, err := rackit.SchemasFromYAML(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server")
}

func TestSchemasFromYAML_Invalid(t *testing.T) {
	t.Parallel()

	_, err := rackit.SchemasFromYAML([]byte("schemas:\n  - name: item\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, rackit.ErrEndpointRequired)
}

func TestSchemaFromYAML(t *testing.T) {
	t.Parallel()

	schema, err := rackit.SchemaFromYAML([]byte("name: item\nendpoint: /items\n"))
	require.NoError(t, err)
	assert.Equal(t, "item", schema.Name)
	assert.Equal(t, "/items", schema.Endpoint)
}

func TestSchemaFromYAML_RejectsRelations(t *testing.T) {
	t.Parallel()

	doc := []byte(`
name: server
endpoint: /servers
relations:
  disks:
    kind: nested
    target: disk
`)

	_, err := rackit.SchemaFromYAML(doc)
	require.Error(t, err)
}
