package handler

import (
	"github.com/labstack/echo/v4"

	"cricstats-proxy/internal/config"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The proxy
// mounts at the configured path prefix and catches every method, including
// OPTIONS preflights.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	prefix := cfg.Proxy.PathPrefix
	e.Any(prefix, proxy.Handle)
	e.Any(prefix+"/*", proxy.Handle)
}
