package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"cricstats-proxy/internal/metrics"
	"cricstats-proxy/internal/model"
	"cricstats-proxy/internal/origin"
	"cricstats-proxy/internal/service"
)

const (
	allowedMethods      = "GET, POST, OPTIONS"
	defaultAllowHeaders = "Content-Type"
)

// ProxyHandler forwards API requests to the upstream backend and speaks CORS
// to the browser on its behalf.
type ProxyHandler struct {
	service *service.ProxyService
	policy  *origin.Policy
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter is optional;
// pass nil to disable preflight metrics recording.
func NewProxyHandler(svc *service.ProxyService, policy *origin.Policy, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		policy:  policy,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Handle proxies the request to the upstream backend and streams the response
// back. OPTIONS preflights are answered locally and never reach the upstream.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()
	res := h.policy.Resolve(req.Header.Get("Origin"), req.Host)

	h.writeCORSHeaders(c, res)

	if req.Method == http.MethodOptions {
		if h.metrics != nil {
			h.metrics.PreflightTotal.WithLabelValues(strconv.FormatBool(res.AllowListed)).Inc()
		}
		return c.NoContent(http.StatusNoContent)
	}

	pr := &model.ProxyRequest{
		Ctx:            req.Context(),
		Method:         req.Method,
		Path:           req.URL.EscapedPath(),
		RawQuery:       req.URL.RawQuery,
		Body:           req.Body,
		UpstreamOrigin: res.Origin,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.proxyError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Copy upstream response headers; the service has already removed any
	// upstream access-control-* headers so only our own CORS headers remain.
	// An upstream Vary merges with the Vary: Origin set above — multiple
	// Vary values combine, so no dedup is needed.
	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the upstream body directly to the client. If io.Copy fails
	// mid-stream (e.g. client disconnect, network error), the HTTP status
	// code has already been sent, so the client receives a truncated
	// response with the original status. This is an inherent trade-off of
	// streaming proxies — we log the error for observability.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", req.URL.Path,
		)
	}

	return nil
}

// writeCORSHeaders attaches CORS headers to the response.
//
// The allow headers echo the browser's preflight request, and the
// origin-reflecting headers are set only when the caller's own Origin was an
// exact allow-list match. The fallback origin resolved for unknown callers is
// never reflected here: it exists solely to label the upstream-facing request.
func (h *ProxyHandler) writeCORSHeaders(c echo.Context, res origin.Resolution) {
	hdr := c.Response().Header()

	hdr.Set(echo.HeaderAccessControlAllowMethods, allowedMethods)

	allowHeaders := c.Request().Header.Get(echo.HeaderAccessControlRequestHeaders)
	if allowHeaders == "" {
		allowHeaders = defaultAllowHeaders
	}
	hdr.Set(echo.HeaderAccessControlAllowHeaders, allowHeaders)

	if res.AllowListed {
		hdr.Set(echo.HeaderAccessControlAllowOrigin, res.Origin)
		hdr.Set(echo.HeaderAccessControlAllowCredentials, "true")
		hdr.Add(echo.HeaderVary, "Origin")
	}
}

// proxyError reports an upstream transport failure as a 500 with a fixed JSON
// shape. There is exactly one failure path: no retries, no status mapping.
func (h *ProxyHandler) proxyError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error":   "Proxy error",
		"message": err.Error(),
	})
}
