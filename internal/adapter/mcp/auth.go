package mcp

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware requires the key returned by key, sent either as
// "Authorization: Bearer <key>" or bare. key is consulted per request so a
// reloaded secret applies without restarting the listener. A nil key, or one
// returning "", lets every request through.
func AuthMiddleware(key func() string, next http.Handler) http.Handler {
	if key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := key()
		if want == "" {
			next.ServeHTTP(w, r)
			return
		}
		got, present := presentedKey(r)
		switch {
		case !present:
			w.Header().Set("WWW-Authenticate", `Bearer realm="bankx-mcp"`)
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
		case subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1:
			http.Error(w, "invalid credentials", http.StatusForbidden)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func presentedKey(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", false
	}
	if scheme, rest, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest), true
	}
	return h, true
}
