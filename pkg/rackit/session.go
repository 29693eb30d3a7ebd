package rackit

import (
	"context"

	"github.com/stackhpc/rackit/internal/transport"
)

// The transport types are aliased here so the session boundary is expressed
// entirely in terms of this package.
type (
	// Request describes one HTTP request passed to a Session.
	Request = transport.Request

	// Response carries the status, headers and raw body of one exchange.
	// A non-2xx status is interpreted by managers, not by the session.
	Response = transport.Response

	// Logger is the structured logging interface used by the default
	// session for debug logging.
	Logger = transport.Logger

	// TokenSource supplies a bearer token for each request.
	TokenSource = transport.TokenSource

	// StaticToken is a TokenSource returning a fixed token.
	StaticToken = transport.StaticToken

	// SessionOption configures the default session.
	SessionOption = transport.Option
)

// Session is the transport capability consumed by a Connection. It executes
// one HTTP request and returns the status, headers and body; errors are
// network-level only. Cross-cutting concerns configured on a Session (auth,
// TLS, retries, logging) apply uniformly to every request routed through it.
type Session interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Options for the default session.
var (
	// WithLogger sets the logger used for debug logging.
	WithLogger = transport.WithLogger

	// WithDebug enables request/response logging.
	WithDebug = transport.WithDebug

	// WithUserAgent overrides the User-Agent header.
	WithUserAgent = transport.WithUserAgent

	// WithRetryConfig enables transport-level retries for transient
	// failures (connection errors, 429 and 5xx responses).
	WithRetryConfig = transport.WithRetryConfig

	// WithTokenSource sets the bearer token source for every request.
	WithTokenSource = transport.WithTokenSource

	// WithBasicAuth sets HTTP basic credentials for every request.
	WithBasicAuth = transport.WithBasicAuth

	// WithHeader adds a header to every request.
	WithHeader = transport.WithHeader

	// WithHTTPClient replaces the underlying http.Client.
	WithHTTPClient = transport.WithHTTPClient
)

// NewSession creates the default Session: JSON encoding, optional bearer or
// basic auth, optional retries, and absolute-URL passthrough so pagination
// links can be followed unchanged.
func NewSession(baseURL string, opts ...SessionOption) Session {
	return transport.NewClient(baseURL, opts...)
}
