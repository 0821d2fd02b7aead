package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/devusermeta/nubankx-sub000/internal/domain"
)

// apiError is the body of every non-2xx response.
type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// readJSON decodes the request body into a T, answering 413 or 400 itself
// when that fails.
func readJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	err := dec.Decode(&v)
	if err == nil {
		return v, true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body exceeds "+humanBytes(limit))
	} else {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
	}
	return v, false
}

func urlParam(r *http.Request, name string) string { return chi.URLParam(r, name) }

func requireField(w http.ResponseWriter, value, name string) bool {
	if strings.TrimSpace(value) != "" {
		return true
	}
	writeJSON(w, http.StatusBadRequest, apiError{Error: name + " is required", Kind: "validation"})
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("encode response", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// writeDomainError maps the domain sentinels onto HTTP statuses. Anything
// unrecognised is logged and hidden behind a 500.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, apiError{Error: err.Error(), Kind: "not_found"})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, apiError{Error: err.Error(), Kind: "conflict"})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error(), Kind: "validation"})
	default:
		writeInternalError(w, r, err)
	}
}

func writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return strconv.FormatInt(n>>20, 10) + "MiB"
	case n >= 1<<10 && n%(1<<10) == 0:
		return strconv.FormatInt(n>>10, 10) + "KiB"
	default:
		return strconv.FormatInt(n, 10) + " bytes"
	}
}
