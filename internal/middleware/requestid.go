// Package middleware provides HTTP middleware for the BankX supervisor.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/devusermeta/nubankx-sub000/internal/logger"
)

const (
	headerRequestID     = "X-Request-ID"
	headerCorrelationID = "X-Correlation-ID"
)

// RequestID is HTTP middleware that extracts X-Request-ID from the request
// header or generates a new one. The ID is stored in the context and set
// on the response header. A caller-supplied X-Correlation-ID is carried the
// same way, but never generated here.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = generateID()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		if corr := r.Header.Get(headerCorrelationID); corr != "" {
			ctx = logger.WithCorrelationID(ctx, corr)
			w.Header().Set(headerCorrelationID, corr)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// generateID returns a 16-byte random hex string (32 chars).
func generateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
