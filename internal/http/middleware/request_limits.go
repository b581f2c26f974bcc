package middleware

import (
	"net/http"
)

// RequestSizeLimit creates middleware that limits the maximum request body size.
// Handlers decoding through httputil.ReadJSON answer 413 when it trips.
func RequestSizeLimit(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		return passthrough
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
