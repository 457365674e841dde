package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// The limiter is stock Echo middleware; this pins the wiring used in main
// when server.rate_limit.enabled is set.
func TestRateLimiter_RejectsBurst(t *testing.T) {
	e := echo.New()

	store := echomw.NewRateLimiterMemoryStore(rate.Limit(1)) // 1 rps, burst 1
	e.Use(echomw.RateLimiter(store))
	e.GET("/api/teams/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/teams/1", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", rec.Code, http.StatusOK)
	}

	got429 := false
	for i := 0; i < 10; i++ {
		req = httptest.NewRequest(http.MethodGet, "/api/teams/1", http.NoBody)
		rec = httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			got429 = true
			break
		}
	}
	if !got429 {
		t.Error("expected at least one 429 response after burst, got none")
	}
}
