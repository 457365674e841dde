// Package service implements the core proxy forwarding logic.
package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"cricstats-proxy/internal/client"
	"cricstats-proxy/internal/config"
	"cricstats-proxy/internal/model"
)

const userAgent = "cricstats-proxy/1.0"

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client     *client.UpstreamClient
	cfg        *config.Config
	logger     *slog.Logger
	base       string
	pathPrefix string
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}

	return &ProxyService{
		client:     c,
		cfg:        cfg,
		logger:     logger.With("component", "proxy_service"),
		base:       strings.TrimSuffix(u.String(), "/"),
		pathPrefix: cfg.Proxy.PathPrefix,
	}, nil
}

// Forward sends a ProxyRequest to the upstream backend and returns the
// response with any upstream CORS headers removed. The caller is responsible
// for closing the response body.
//
// Only two request headers reach the backend: a fixed Content-Type of
// application/json and the resolved Origin identifying the calling frontend.
// Inbound auth headers and cookies never travel upstream.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	upstreamURL := s.buildUpstreamURL(pr.Path, pr.RawQuery)

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	header.Set("Origin", pr.UpstreamOrigin)
	header.Set("User-Agent", userAgent)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"path", pr.Path,
		"upstream_origin", pr.UpstreamOrigin,
	)

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, upstreamURL, header, pr.Body)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	resp.Header = stripCORSHeaders(resp.Header)
	return resp, nil
}

// buildUpstreamURL joins the prefix-stripped escaped path and the verbatim
// query string onto the upstream base URL. The query is never parsed or
// re-encoded: key order, bare flags, and percent-escapes reach the backend
// exactly as the caller sent them.
func (s *ProxyService) buildUpstreamURL(path, rawQuery string) string {
	target := s.base + s.rewritePath(path)
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// rewritePath strips the configured prefix from the inbound path. A request
// for exactly the prefix maps to the upstream root.
func (s *ProxyService) rewritePath(path string) string {
	p := strings.TrimPrefix(path, s.pathPrefix)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// stripCORSHeaders removes every header whose name begins with
// "access-control-" (case-insensitively). The proxy speaks CORS on the
// backend's behalf; any upstream CORS headers would conflict with its own.
func stripCORSHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		if strings.HasPrefix(strings.ToLower(key), "access-control-") {
			continue
		}
		dst[key] = vals
	}
	return dst
}
