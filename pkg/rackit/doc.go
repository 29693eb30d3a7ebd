// Package rackit provides building blocks for REST API client libraries: it
// turns HTTP resources into addressable, lazily-materialized, cacheable
// objects with a uniform protocol for listing, fetching, creating, updating
// and deleting them, including pagination and resource nesting/embedding.
//
// # Overview
//
// Applications supply two things: a transport (a Session, usually built with
// NewSession) and one Schema per resource type (endpoint, primary key field,
// attribute aliases, relations). The package supplies everything else — the
// Connection that routes requests, the ResourceManager that orchestrates
// requests and caches fetched instances, and the Resource value that exposes
// field access with transparent lazy loading.
//
// # Getting started
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/stackhpc/rackit/pkg/rackit"
//	)
//
//	var Items = &rackit.Schema{Name: "item", Endpoint: "/items"}
//
//	func example() {
//	  ctx := context.Background()
//	  conn := rackit.NewConnection("https://api.example.com", rackit.NewSession("https://api.example.com"))
//
//	  items := conn.Root(Items)
//	  item, err := items.Get(ctx, 42)
//	  if err != nil { log.Fatal(err) }
//	  name, err := item.GetString(ctx, "name")
//	  if err != nil { log.Fatal(err) }
//	  _ = name
//	}
//
// # Pagination
//
// Manager.All returns a lazy Iterator over pages. No request is made until
// the iterator is advanced, and stopping early fetches no further pages:
//
//	it := items.All(ctx, nil)
//	for it.HasNext() {
//	  item, err := it.Next()
//	  if err != nil { break }
//	  _ = item
//	}
//
// # Lazy loading
//
// A Resource constructed with partial data (for example via GetLazy, or as a
// reference produced by a relation) fetches its full representation exactly
// once, on the first access to a field it does not hold. A field that is
// still absent after the fetch yields a MissingAttributeError.
//
// # Errors
//
// Failures are typed: TransportError for network-level failures, HTTPError
// for non-2xx responses, NotFoundError for Get misses, and
// MissingAttributeError for absent fields. Helpers such as IsNotFound make
// it easy to branch on the common cases.
//
// # Caching
//
// Each manager caches the most recently fetched full instance per primary
// key. The cache is pluggable: MemoryCache is the default, NoOpCache
// disables caching, and NATSKVCache shares representations across processes
// through a NATS JetStream key-value bucket.
package rackit
