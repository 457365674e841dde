package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cricstats-proxy/internal/client"
	"cricstats-proxy/internal/config"
	"cricstats-proxy/internal/model"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Upstream: config.UpstreamConfig{
			BaseURL:         baseURL,
			TimeoutSeconds:  10,
			IdleConnections: 10,
		},
		Proxy: config.ProxyConfig{PathPrefix: "/api"},
	}
}

func newTestService(t *testing.T, baseURL string) *ProxyService {
	t.Helper()
	cfg := testConfig(baseURL)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := client.NewUpstreamClient(cfg, logger, nil)
	svc, err := NewProxyService(uc, cfg, logger)
	if err != nil {
		t.Fatalf("NewProxyService: %v", err)
	}
	return svc
}

func TestRewritePath(t *testing.T) {
	s := &ProxyService{pathPrefix: "/api"}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"prefix stripped", "/api/teams/123", "/teams/123"},
		{"deep path", "/api/venues/1/stats", "/venues/1/stats"},
		{"bare prefix maps to root", "/api", "/"},
		{"prefix with trailing slash", "/api/", "/"},
		{"no prefix passes through", "/teams/123", "/teams/123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.rewritePath(tt.path); got != tt.want {
				t.Errorf("rewritePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestBuildUpstreamURL(t *testing.T) {
	s := &ProxyService{
		base:       "https://cricket-stats-backend.onrender.com",
		pathPrefix: "/api",
	}

	tests := []struct {
		name     string
		path     string
		rawQuery string
		want     string
	}{
		{
			name:     "path with query params",
			path:     "/api/teams/123",
			rawQuery: "x=1",
			want:     "https://cricket-stats-backend.onrender.com/teams/123?x=1",
		},
		{
			name:     "no query string",
			path:     "/api/players",
			rawQuery: "",
			want:     "https://cricket-stats-backend.onrender.com/players",
		},
		{
			name:     "query carried verbatim",
			path:     "/api/batters",
			rawQuery: "z=1&a=2&flag&b=%3B",
			want:     "https://cricket-stats-backend.onrender.com/batters?z=1&a=2&flag&b=%3B",
		},
		{
			name:     "repeated keys keep order",
			path:     "/api/query",
			rawQuery: "season=2025&team=csk&season=2024",
			want:     "https://cricket-stats-backend.onrender.com/query?season=2025&team=csk&season=2024",
		},
		{
			name:     "escaped path segment preserved",
			path:     "/api/players/Virat%20Kohli",
			rawQuery: "",
			want:     "https://cricket-stats-backend.onrender.com/players/Virat%20Kohli",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.buildUpstreamURL(tt.path, tt.rawQuery)
			if got != tt.want {
				t.Errorf("buildUpstreamURL(%q, %q) = %q, want %q", tt.path, tt.rawQuery, got, tt.want)
			}
		})
	}
}

func TestStripCORSHeaders(t *testing.T) {
	src := http.Header{
		"Content-Type":                     {"application/json"},
		"Content-Length":                   {"42"},
		"Access-Control-Allow-Origin":      {"*"},
		"Access-Control-Allow-Methods":     {"GET"},
		"Access-Control-Expose-Headers":    {"X-Total"},
		"Access-Control-Allow-Credentials": {"true"},
		"X-Powered-By":                     {"uvicorn"},
	}

	dst := stripCORSHeaders(src)

	tests := []struct {
		name    string
		key     string
		wantLen int
	}{
		{"Content-Type kept", "Content-Type", 1},
		{"Content-Length kept", "Content-Length", 1},
		{"X-Powered-By kept", "X-Powered-By", 1},
		{"Allow-Origin stripped", "Access-Control-Allow-Origin", 0},
		{"Allow-Methods stripped", "Access-Control-Allow-Methods", 0},
		{"Expose-Headers stripped", "Access-Control-Expose-Headers", 0},
		{"Allow-Credentials stripped", "Access-Control-Allow-Credentials", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := len(dst.Values(tt.key))
			if got != tt.wantLen {
				t.Errorf("header %q: got %d values, want %d", tt.key, got, tt.wantLen)
			}
		})
	}
}

func TestStripCORSHeaders_NonCanonicalNames(t *testing.T) {
	// Header maps built by hand may carry non-canonical keys; stripping is
	// case-insensitive on the prefix.
	src := http.Header{
		"access-control-allow-origin": {"*"},
		"ACCESS-CONTROL-MAX-AGE":      {"600"},
		"Content-Type":                {"application/json"},
	}

	dst := stripCORSHeaders(src)

	if len(dst) != 1 {
		t.Errorf("got %d headers, want 1: %v", len(dst), dst)
	}
	if dst.Get("Content-Type") != "application/json" {
		t.Error("Content-Type should survive stripping")
	}
}

func TestForward_HappyPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/teams/123" {
			t.Errorf("upstream path = %q, want %q", r.URL.Path, "/teams/123")
		}
		if r.URL.RawQuery != "x=1" {
			t.Errorf("upstream query = %q, want %q", r.URL.RawQuery, "x=1")
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if o := r.Header.Get("Origin"); o != "https://cricket-data-thing.vercel.app" {
			t.Errorf("Origin = %q, want resolved origin", o)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":123}`))
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)

	pr := &model.ProxyRequest{
		Ctx:            context.Background(),
		Method:         http.MethodGet,
		Path:           "/api/teams/123",
		RawQuery:       "x=1",
		UpstreamOrigin: "https://cricket-data-thing.vercel.app",
	}

	resp, err := svc.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != `{"id":123}` {
		t.Errorf("body = %q, want %q", string(body), `{"id":123}`)
	}
}

func TestForward_QueryStringVerbatim(t *testing.T) {
	// Key order, bare flags, and percent-escapes must survive untouched;
	// parsing and re-encoding would sort keys and rewrite ?flag to flag=.
	const rawQuery = "z=1&a=2&flag&b=%3B"

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != rawQuery {
			t.Errorf("upstream query = %q, want verbatim %q", r.URL.RawQuery, rawQuery)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)

	pr := &model.ProxyRequest{
		Ctx:            context.Background(),
		Method:         http.MethodGet,
		Path:           "/api/batters",
		RawQuery:       rawQuery,
		UpstreamOrigin: "https://cricket-data-thing.vercel.app",
	}

	resp, err := svc.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	_ = resp.Body.Close()
}

func TestForward_EscapedPathPreserved(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.EscapedPath(); got != "/players/Virat%20Kohli" {
			t.Errorf("upstream escaped path = %q, want %q", got, "/players/Virat%20Kohli")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)

	pr := &model.ProxyRequest{
		Ctx:            context.Background(),
		Method:         http.MethodGet,
		Path:           "/api/players/Virat%20Kohli",
		UpstreamOrigin: "https://cricket-data-thing.vercel.app",
	}

	resp, err := svc.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	_ = resp.Body.Close()
}

func TestForward_DoesNotLeakInboundHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("Authorization must not be forwarded upstream")
		}
		if r.Header.Get("Cookie") != "" {
			t.Error("Cookie must not be forwarded upstream")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)

	// ProxyRequest carries no inbound header map at all; the service sets a
	// fixed header set. This test pins that contract against regressions.
	pr := &model.ProxyRequest{
		Ctx:            context.Background(),
		Method:         http.MethodGet,
		Path:           "/api/teams/1",
		UpstreamOrigin: "https://cricket-data-thing.vercel.app",
	}

	resp, err := svc.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	_ = resp.Body.Close()
}

func TestForward_StripsUpstreamCORSHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, DELETE")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)

	pr := &model.ProxyRequest{
		Ctx:            context.Background(),
		Method:         http.MethodGet,
		Path:           "/api/stats",
		UpstreamOrigin: "https://cricket-data-thing.vercel.app",
	}

	resp, err := svc.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "" {
		t.Errorf("Access-Control-Allow-Origin should be stripped, got %q", v)
	}
	if v := resp.Header.Get("Access-Control-Allow-Methods"); v != "" {
		t.Errorf("Access-Control-Allow-Methods should be stripped, got %q", v)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Error("Content-Type should survive")
	}
}

func TestForward_BodyPassedVerbatim(t *testing.T) {
	const payload = `{"filter":"x"}`

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != payload {
			t.Errorf("upstream body = %q, want %q", string(body), payload)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	svc := newTestService(t, upstream.URL)

	pr := &model.ProxyRequest{
		Ctx:            context.Background(),
		Method:         http.MethodPost,
		Path:           "/api/query",
		Body:           io.NopCloser(strings.NewReader(payload)),
		UpstreamOrigin: "https://cricket-data-thing.vercel.app",
	}

	resp, err := svc.Forward(pr)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	_ = resp.Body.Close()
}

func TestForward_UpstreamUnreachable(t *testing.T) {
	// Reserve a port then close it so the connection is refused.
	srv := httptest.NewServer(http.NotFoundHandler())
	deadURL := srv.URL
	srv.Close()

	svc := newTestService(t, deadURL)

	pr := &model.ProxyRequest{
		Ctx:            context.Background(),
		Method:         http.MethodGet,
		Path:           "/api/teams/1",
		UpstreamOrigin: "https://cricket-data-thing.vercel.app",
	}

	_, err := svc.Forward(pr)
	if err == nil {
		t.Fatal("Forward() expected error for unreachable upstream")
	}
}
