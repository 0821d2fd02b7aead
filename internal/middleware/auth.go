package middleware

import (
	"crypto/sha256"
	"net/http"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const headerAPIKey = "X-API-Key"

// APIKeyAuth returns middleware that requires an X-API-Key matching the
// bcrypt hash on mutating requests. An empty hash disables the check.
func APIKeyAuth(hash string) func(http.Handler) http.Handler {
	if hash == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return APIKeyAuthFunc(func() string { return hash })
}

// APIKeyAuthFunc is APIKeyAuth with the hash read on every request, so a
// rotated hash takes effect without a restart.
func APIKeyAuthFunc(hash func() string) func(http.Handler) http.Handler {
	v := &keyVerifier{}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := hash()
			if h == "" || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(headerAPIKey)
			if key == "" {
				http.Error(w, `{"error":"api key required"}`, http.StatusUnauthorized)
				return
			}
			if !v.verify(h, key) {
				http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// keyVerifier remembers the digest of the last accepted key and the hash it
// matched so bcrypt runs once per key rather than once per request.
type keyVerifier struct {
	mu       sync.Mutex
	hash     string
	accepted [sha256.Size]byte
	ok       bool
}

func (v *keyVerifier) verify(hash, key string) bool {
	digest := sha256.Sum256([]byte(key))
	v.mu.Lock()
	hit := v.ok && v.hash == hash && v.accepted == digest
	v.mu.Unlock()
	if hit {
		return true
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) != nil {
		return false
	}
	v.mu.Lock()
	v.hash, v.accepted, v.ok = hash, digest, true
	v.mu.Unlock()
	return true
}

// HashAPIKey returns the bcrypt hash to configure as auth.api_key_hash.
func HashAPIKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
