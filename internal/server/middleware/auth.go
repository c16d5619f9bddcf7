package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth guards the trading endpoints with a single operator key. Clients may
// present it as "Authorization: Bearer <key>" or in the X-API-Key header.
// An empty configured key leaves the API open, which only makes sense when
// the server is bound to localhost.
func Auth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			presented := credentialFrom(r)
			if presented == "" {
				denyRequest(w, "missing authentication token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
				denyRequest(w, "invalid authentication token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// credentialFrom pulls the key from the request, preferring the Authorization
// header over X-API-Key when both are present.
func credentialFrom(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if scheme, rest, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func denyRequest(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
