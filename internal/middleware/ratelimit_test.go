package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devusermeta/nubankx-sub000/internal/config"
)

func limited(rl *RateLimiter) http.Handler {
	return rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch", http.NoBody)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterBurstThenReject(t *testing.T) {
	h := limited(NewRateLimiter(config.Rate{RequestsPerSecond: 0.5, Burst: 3}))

	for i := range 3 {
		rec := hit(h, "203.0.113.7:5000")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("request %d within burst got %d", i+1, rec.Code)
		}
		if got, want := rec.Header().Get("X-RateLimit-Remaining"), []string{"2", "1", "0"}[i]; got != want {
			t.Fatalf("request %d remaining = %s, want %s", i+1, got, want)
		}
	}

	rec := hit(h, "203.0.113.7:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("over burst got %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After = %q, want 2 at 0.5 rps", got)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "3" {
		t.Fatalf("X-RateLimit-Limit = %q", got)
	}
}

func TestRateLimiterKeysByHost(t *testing.T) {
	h := limited(NewRateLimiter(config.Rate{RequestsPerSecond: 1, Burst: 1}))

	if hit(h, "198.51.100.1:1111").Code != http.StatusNoContent {
		t.Fatal("first client rejected")
	}
	// Same host from another port shares the bucket.
	if hit(h, "198.51.100.1:2222").Code != http.StatusTooManyRequests {
		t.Fatal("same host should be limited")
	}
	if hit(h, "198.51.100.2:1111").Code != http.StatusNoContent {
		t.Fatal("other host should have its own bucket")
	}
	// A RemoteAddr without a port is used as is.
	if hit(h, "198.51.100.3").Code != http.StatusNoContent {
		t.Fatal("portless address rejected")
	}
}

func TestRateLimiterRefillsAndCleansUp(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(config.Rate{RequestsPerSecond: 1, Burst: 1})
	rl.now = func() time.Time { return now }

	if _, _, ok := rl.allow("10.0.0.9"); !ok {
		t.Fatal("first request should pass")
	}
	_, wait, ok := rl.allow("10.0.0.9")
	if ok {
		t.Fatal("second request should be limited")
	}
	if wait <= 0 || wait > time.Second {
		t.Fatalf("retry after = %v, want within one second", wait)
	}
	now = now.Add(1500 * time.Millisecond)
	if _, _, ok := rl.allow("10.0.0.9"); !ok {
		t.Fatal("token should refill after a second")
	}

	now = now.Add(time.Hour)
	rl.cleanup(time.Minute)
	if rl.Len() != 0 {
		t.Fatalf("expected idle client removed, %d left", rl.Len())
	}
}
