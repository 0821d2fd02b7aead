package middleware_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devusermeta/nubankx-sub000/internal/middleware"
)

// mockCache is an in-memory cache.Cache for testing.
type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockCache) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func makeTestHandler(counter *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*counter++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"call":%d}`, *counter)
	})
}

func post(h http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, http.NoBody)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_NoHeader(t *testing.T) {
	counter := 0
	c := newMockCache()
	handler := middleware.Idempotency(c, time.Hour)(makeTestHandler(&counter, http.StatusOK))

	post(handler, "/api/v1/dispatch", "")
	post(handler, "/api/v1/dispatch", "")

	if counter != 2 {
		t.Fatalf("expected 2 calls, got %d", counter)
	}
	if c.len() != 0 {
		t.Fatal("nothing should be stored without a key")
	}
}

func TestIdempotency_SecondRequestReplays(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockCache(), time.Hour)(makeTestHandler(&counter, http.StatusCreated))

	rec1 := post(handler, "/api/v1/agents", "key-2")
	rec2 := post(handler, "/api/v1/agents", "key-2")

	if counter != 1 {
		t.Fatalf("expected handler called once, got %d", counter)
	}
	if rec2.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec2.Code)
	}
	if rec2.Body.String() != rec1.Body.String() {
		t.Fatalf("replayed body %q != original %q", rec2.Body.String(), rec1.Body.String())
	}
	if rec2.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replay marker header")
	}
}

func TestIdempotency_ScopedByPath(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockCache(), time.Hour)(makeTestHandler(&counter, http.StatusOK))

	post(handler, "/api/v1/dispatch", "same")
	post(handler, "/api/v1/classify", "same")

	if counter != 2 {
		t.Fatalf("same key on different paths must not replay, got %d calls", counter)
	}
}

func TestIdempotency_ServerErrorNotStored(t *testing.T) {
	counter := 0
	c := newMockCache()
	handler := middleware.Idempotency(c, time.Hour)(makeTestHandler(&counter, http.StatusInternalServerError))

	post(handler, "/api/v1/dispatch", "k")
	post(handler, "/api/v1/dispatch", "k")

	if counter != 2 {
		t.Fatalf("5xx responses must not be replayed, got %d calls", counter)
	}
	if c.len() != 0 {
		t.Fatal("5xx response stored")
	}
}

func TestIdempotency_GETIgnored(t *testing.T) {
	counter := 0
	handler := middleware.Idempotency(newMockCache(), time.Hour)(makeTestHandler(&counter, http.StatusOK))

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", http.NoBody)
		req.Header.Set("Idempotency-Key", "key-get")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if counter != 2 {
		t.Fatalf("expected handler called twice, got %d", counter)
	}
}

func postBody(h http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", key)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_DifferentBodyRejected(t *testing.T) {
	var seen []string
	h := middleware.Idempotency(newMockCache(), time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = append(seen, string(b))
		w.WriteHeader(http.StatusOK)
	}))

	if rec := postBody(h, "k", `{"user_text":"balance"}`); rec.Code != http.StatusOK {
		t.Fatalf("first = %d", rec.Code)
	}
	if rec := postBody(h, "k", `{"user_text":"transfer"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("reused key with new body = %d, want 422", rec.Code)
	}
	if len(seen) != 1 || seen[0] != `{"user_text":"balance"}` {
		t.Fatalf("handler saw %q, want the original body once", seen)
	}
}

func TestIdempotency_ConcurrentDuplicatesShareResponse(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	h := middleware.Idempotency(newMockCache(), time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		<-release
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))

	const n = 5
	var wg sync.WaitGroup
	codes := make(chan int, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- postBody(h, "dup", `{}`).Code
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(codes)

	for code := range codes {
		if code != http.StatusOK {
			t.Fatalf("duplicate got %d", code)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("handler ran %d times, want 1", got)
	}
}
