package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tailorline/storefront/internal/platform/auth"
)

func TestSimpleRateLimiterResetsAfterWindow(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	limiter := newSimpleRateLimiter(2, time.Minute, func() time.Time { return now })

	if !limiter.Allow("u1") || !limiter.Allow("u1") {
		t.Fatalf("expected first two calls to pass")
	}
	if limiter.Allow("u1") {
		t.Fatalf("expected third call to be throttled")
	}
	if !limiter.Allow("u2") {
		t.Fatalf("expected other keys to be unaffected")
	}

	now = now.Add(time.Minute + time.Second)
	if !limiter.Allow("u1") {
		t.Fatalf("expected limit to reset after window")
	}
}

func TestNewSimpleRateLimiterDisabled(t *testing.T) {
	if newSimpleRateLimiter(0, time.Minute, nil) != nil {
		t.Fatalf("expected nil limiter for zero limit")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := RateLimitMiddleware(1, time.Minute, func() time.Time { return now })(next)

	serve := func(remote, uid string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
		req.RemoteAddr = remote
		if uid != "" {
			req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := serve("10.0.0.1:5000", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected first anonymous call to pass, got %d", rr.Code)
	}
	rr := serve("10.0.0.1:5001", "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected same address to be throttled, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
	}
	if rr := serve("10.0.0.1:5002", "user-1"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected authenticated caller to use its own bucket, got %d", rr.Code)
	}

	disabled := RateLimitMiddleware(0, time.Minute, nil)(next)
	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		disabled.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected disabled limiter to pass, got %d", rr.Code)
		}
	}
}
