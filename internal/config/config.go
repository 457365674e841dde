// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/cricstats-proxy/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Proxy    ProxyConfig    `toml:"proxy"`
	CORS     CORSConfig     `toml:"cors"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds upstream connection settings.
//
// TimeoutSeconds defaults to 0, meaning no client-side timeout: the backend
// serves long-running statistics queries whose responses must not be cut off
// mid-stream. Operators can set a bound explicitly.
type UpstreamConfig struct {
	BaseURL         string `toml:"base_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	IdleConnections int    `toml:"idle_connections"`
}

// ProxyConfig holds request-rewriting settings.
type ProxyConfig struct {
	// PathPrefix is stripped from inbound paths before forwarding upstream.
	PathPrefix string `toml:"path_prefix"`
}

// CORSConfig holds the origin allow-list and the host-to-origin fallback map.
type CORSConfig struct {
	// AllowedOrigins are matched exactly against the Origin request header.
	AllowedOrigins []string `toml:"allowed_origins"`
	// DefaultOrigin is the upstream-facing Origin used when neither the
	// allow-list nor the host map matches.
	DefaultOrigin string `toml:"default_origin"`
	// HostOrigins maps a hostname fragment (substring of the Host header)
	// to that deployment's canonical origin.
	HostOrigins map[string]string `toml:"host_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/cricstats-proxy/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Upstream URL: HTTPS required when set; setDefaults fills it otherwise.
	if c.Upstream.BaseURL != "" {
		u, err := url.Parse(c.Upstream.BaseURL)
		if err != nil {
			return fmt.Errorf("upstream.base_url is not a valid URL: %w", err)
		}
		if u.Scheme != "https" {
			return fmt.Errorf("upstream.base_url must use HTTPS; got %q", c.Upstream.BaseURL)
		}
	}

	// Origins must be scheme://host with no path, so exact matching against
	// the Origin request header works.
	for _, o := range c.CORS.AllowedOrigins {
		if err := validateOrigin(o); err != nil {
			return fmt.Errorf("cors.allowed_origins: %w", err)
		}
	}
	if c.CORS.DefaultOrigin != "" {
		if err := validateOrigin(c.CORS.DefaultOrigin); err != nil {
			return fmt.Errorf("cors.default_origin: %w", err)
		}
	}
	for frag, o := range c.CORS.HostOrigins {
		if frag == "" {
			return fmt.Errorf("cors.host_origins contains an empty hostname fragment")
		}
		if err := validateOrigin(o); err != nil {
			return fmt.Errorf("cors.host_origins[%q]: %w", frag, err)
		}
	}

	if c.Proxy.PathPrefix != "" && c.Proxy.PathPrefix[0] != '/' {
		return fmt.Errorf("proxy.path_prefix must start with '/'; got %q", c.Proxy.PathPrefix)
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/api", "/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// validateOrigin checks that s is scheme://host with no path or trailing slash.
func validateOrigin(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("origin %q is not a valid URL: %w", s, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("origin %q must use http or https", s)
	}
	if u.Host == "" {
		return fmt.Errorf("origin %q has no host", s)
	}
	if u.Path != "" || strings.HasSuffix(s, "/") {
		return fmt.Errorf("origin %q must not have a path or trailing slash", s)
	}
	return nil
}

// Default CORS configuration: the known frontend deployments plus the local
// dev server, and the production hostname fragments used for Host-based
// fallback mapping.
var (
	defaultAllowedOrigins = []string{
		"https://cricket-data-thing.vercel.app",
		"https://hindsight-cricket.vercel.app",
		"http://localhost:3000",
	}
	defaultFallbackOrigin = "https://cricket-data-thing.vercel.app"
	defaultHostOrigins    = map[string]string{
		"cricket-data-thing": "https://cricket-data-thing.vercel.app",
		"hindsight":          "https://hindsight-cricket.vercel.app",
	}
	defaultUpstreamBaseURL = "https://cricket-stats-backend.onrender.com"
)

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. The exception is
// upstream.timeout_seconds, where 0 is meaningful (no timeout) and is the default.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = defaultUpstreamBaseURL
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Proxy.PathPrefix == "" {
		c.Proxy.PathPrefix = "/api"
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = defaultAllowedOrigins
	}
	if c.CORS.DefaultOrigin == "" {
		c.CORS.DefaultOrigin = defaultFallbackOrigin
	}
	if len(c.CORS.HostOrigins) == 0 {
		c.CORS.HostOrigins = defaultHostOrigins
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
