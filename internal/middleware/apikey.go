// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/atinyakov/SessionSync/internal/api"
)

// APIKey is a middleware that requires one of keys in the apikey header or
// as a bearer token. With no keys configured every request passes.
//
// The key only gates access to the store. Account isolation comes from the
// user hash and write token carried in each request.
func APIKey(keys []string) func(http.Handler) http.Handler {
	allowed := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			allowed = append(allowed, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(allowed) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(api.APIKeyHeader)
			if presented == "" {
				presented = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if !matchAny(allowed, []byte(presented)) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(api.ErrorResponse{Message: "invalid api key"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matchAny(allowed [][]byte, presented []byte) bool {
	ok := 0
	for _, k := range allowed {
		ok |= subtle.ConstantTimeCompare(k, presented)
	}
	return ok == 1
}
