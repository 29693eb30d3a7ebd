package rackit

import (
	"errors"
	"fmt"
	"net/http"
)

// Static errors that can be wrapped with context.
var (
	// ErrNoMoreItems is returned by Iterator.Next when the iteration is
	// exhausted.
	ErrNoMoreItems = errors.New("no more items")

	ErrSchemaNameRequired = errors.New("schema name is required")
	ErrEndpointRequired   = errors.New("schema endpoint is required")
	ErrUnknownRelation    = errors.New("unknown relation")
	ErrRelationKind       = errors.New("relation has the wrong kind")
	ErrNoPrimaryKey       = errors.New("resource has no primary key")
)

// TransportError wraps a network-level failure from the session. The
// in-flight operation is fatal; nothing is retried at this layer.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

// Unwrap returns the underlying session error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPError represents a non-2xx response that was not otherwise
// reinterpreted. The raw body is retained so callers can decode
// backend-specific error envelopes.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       []byte
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// NotFoundError is returned by Manager.Get when the backend reports that the
// resource does not exist. It carries the requested primary key.
type NotFoundError struct {
	Resource string
	Key      any
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v: not found", e.Resource, e.Key)
}

// MissingAttributeError is returned by field access when a named field is
// absent both before and after a completing fetch.
type MissingAttributeError struct {
	Resource  string
	Attribute string
}

// Error implements the error interface.
func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("%s has no attribute %q", e.Resource, e.Attribute)
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	notFound := &NotFoundError{}
	if errors.As(err, &notFound) {
		return true
	}

	return IsHTTPStatus(err, http.StatusNotFound)
}

// IsHTTPStatus checks if the error is an HTTPError with the given status.
func IsHTTPStatus(err error, status int) bool {
	httpErr := &HTTPError{}
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == status
	}

	return false
}

// IsConflict checks if the error is an HTTP 409 response.
func IsConflict(err error) bool {
	return IsHTTPStatus(err, http.StatusConflict)
}

// IsMissingAttribute checks if the error is a missing attribute error.
func IsMissingAttribute(err error) bool {
	missing := &MissingAttributeError{}

	return errors.As(err, &missing)
}
