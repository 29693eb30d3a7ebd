package rackit

import (
	"context"
	"net/url"
)

// Iterator walks a paginated list lazily. The first request is deferred
// until the iterator is advanced; each further page is requested only when
// the previous one has been consumed, so stopping early fetches nothing
// extra. Iterators are single-use — Manager.All returns a fresh one each
// call, restarting from page one.
type Iterator struct {
	ctx     context.Context
	manager *ResourceManager
	params  url.Values

	next    string
	started bool
	done    bool
	buffer  []*Resource
	err     error
}

func newIterator(ctx context.Context, manager *ResourceManager, params url.Values) *Iterator {
	return &Iterator{
		ctx:     ctx,
		manager: manager,
		params:  params,
	}
}

// HasNext reports whether another item may be available. It performs no
// network activity; an apparently-available item can still turn out to be
// ErrNoMoreItems when the forthcoming page is empty.
func (it *Iterator) HasNext() bool {
	return len(it.buffer) > 0 || !it.done
}

// Next returns the next resource, fetching the next page when the current
// one is exhausted. It returns ErrNoMoreItems once the final page has been
// consumed. Each returned item from a non-ListPartial schema is a full
// instance already inserted into the manager's cache.
func (it *Iterator) Next() (*Resource, error) {
	if it.err != nil {
		return nil, it.err
	}

	for len(it.buffer) == 0 {
		if it.done {
			return nil, ErrNoMoreItems
		}

		err := it.fetchPage()
		if err != nil {
			it.err = err

			return nil, err
		}
	}

	resource := it.buffer[0]
	it.buffer = it.buffer[1:]

	return resource, nil
}

// All drains the iterator into a slice.
func (it *Iterator) All() ([]*Resource, error) {
	var resources []*Resource

	err := it.ForEach(func(resource *Resource) error {
		resources = append(resources, resource)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return resources, nil
}

// ForEach applies fn to each remaining resource, stopping at the first
// error fn returns.
func (it *Iterator) ForEach(fn func(*Resource) error) error {
	for {
		resource, err := it.Next()
		if err == ErrNoMoreItems {
			return nil
		}

		if err != nil {
			return err
		}

		err = fn(resource)
		if err != nil {
			return err
		}
	}
}

// fetchPage requests the next page and decodes its items into instances.
// Caller-supplied params only apply to the first request; continuation URLs
// carry their own query.
func (it *Iterator) fetchPage() error {
	pageURL := it.next
	params := it.params

	if !it.started {
		var err error

		pageURL, err = it.manager.basePath()
		if err != nil {
			return err
		}
	} else {
		params = nil
	}

	items, next, err := it.manager.fetchPage(it.ctx, pageURL, params)
	if err != nil {
		return err
	}

	it.started = true
	it.next = next
	it.done = next == ""

	partial := it.manager.schema.ListPartial
	it.buffer = make([]*Resource, 0, len(items))

	for _, item := range items {
		it.buffer = append(it.buffer, it.manager.makeInstance(item, partial))
	}

	return nil
}
