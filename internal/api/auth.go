package api

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the shared secret callers of the write endpoints present.
const APIKeyHeader = "X-Api-Key"

// WithAPIKey sets the key required on every route except /health.
// With no key set all authenticated routes answer 401.
func (h *Handler) WithAPIKey(key string) *Handler {
	h.apiKey = []byte(key)
	return h
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(APIKeyHeader))
		if len(h.apiKey) == 0 || subtle.ConstantTimeCompare(got, h.apiKey) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
