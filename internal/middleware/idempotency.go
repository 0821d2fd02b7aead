package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/devusermeta/nubankx-sub000/internal/port/cache"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyBody   = 1 << 20
)

// storedResponse is the cached outcome of the first request under a key.
type storedResponse struct {
	Fingerprint string      `json:"fingerprint"`
	Status      int         `json:"status"`
	Header      http.Header `json:"header"`
	Body        []byte      `json:"body"`
}

// Idempotency replays the stored response when a mutating request repeats
// an Idempotency-Key on the same method and path. Reusing a key with a
// different body is refused with 422. Concurrent duplicates wait for the
// first to finish and share its response. 5xx responses are not stored, so
// a failed dispatch can be retried under the same key.
func Idempotency(c cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	var inflight singleflight.Group
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerIdempotencyKey)
			if key == "" || isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBody+1))
			if err != nil {
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			_ = r.Body.Close()
			fp := fingerprint(body)
			scoped := r.Method + " " + r.URL.Path + " " + key
			ctx := r.Context()

			if prev, ok := lookup(r, c, scoped); ok {
				replay(w, prev, fp, true)
				return
			}

			leader := false
			v, _, _ := inflight.Do(scoped, func() (any, error) {
				// A duplicate that missed the cache just before the previous
				// leader stored its response.
				if prev, ok := lookup(r, c, scoped); ok {
					return prev, nil
				}
				leader = true
				rec := &capture{header: http.Header{}, status: http.StatusOK}
				r.Body = io.NopCloser(bytes.NewReader(body))
				next.ServeHTTP(rec, r)
				resp := &storedResponse{Fingerprint: fp, Status: rec.status, Header: rec.header, Body: rec.body.Bytes()}
				if resp.Status < http.StatusInternalServerError && len(body) <= maxIdempotencyBody {
					store(r, c, scoped, resp, ttl)
				}
				return resp, nil
			})
			resp := v.(*storedResponse)
			if !leader {
				slog.DebugContext(ctx, "idempotency: joined in-flight request", "key", key)
			}
			replay(w, resp, fp, !leader)
		})
	}
}

func isSafeMethod(m string) bool {
	return m == http.MethodGet || m == http.MethodHead || m == http.MethodOptions
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func lookup(r *http.Request, c cache.Cache, scoped string) (*storedResponse, bool) {
	data, found, err := c.Get(r.Context(), scoped)
	if err != nil {
		slog.WarnContext(r.Context(), "idempotency: cache get failed", "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var prev storedResponse
	if err := json.Unmarshal(data, &prev); err != nil {
		slog.WarnContext(r.Context(), "idempotency: dropping corrupt entry", "error", err)
		return nil, false
	}
	return &prev, true
}

func store(r *http.Request, c cache.Cache, scoped string, resp *storedResponse, ttl time.Duration) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.Set(r.Context(), scoped, data, ttl); err != nil {
		slog.WarnContext(r.Context(), "idempotency: store failed", "error", err)
	}
}

func replay(w http.ResponseWriter, resp *storedResponse, fp string, replayed bool) {
	if resp.Fingerprint != fp {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"idempotency key reused with a different request body"}`))
		return
	}
	for k, vals := range resp.Header {
		w.Header()[k] = append([]string(nil), vals...)
	}
	if replayed {
		w.Header().Set(headerReplayed, "true")
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

// capture buffers a response so it can be stored before any caller sees it.
type capture struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *capture) Header() http.Header { return c.header }

func (c *capture) WriteHeader(code int) {
	if !c.wroteHeader {
		c.status, c.wroteHeader = code, true
	}
}

func (c *capture) Write(b []byte) (int, error) {
	c.WriteHeader(http.StatusOK)
	return c.body.Write(b)
}
