// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ProxyRequest represents a client request to be forwarded upstream.
// Path is the inbound path in its escaped form and RawQuery the query string
// exactly as received; both travel upstream byte-for-byte (minus the path
// prefix), never re-encoded. UpstreamOrigin is the resolved origin advertised
// to the backend in the outgoing Origin header; it is not necessarily the
// caller's own origin.
type ProxyRequest struct {
	Ctx            context.Context
	Method         string
	Path           string
	RawQuery       string
	Body           io.ReadCloser
	UpstreamOrigin string
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
