// Package requesttime provides middleware for request-scoped time.
// All operations within a single HTTP request use the same "now", so quota
// windows and stored timestamps agree with each other.
package requesttime

import (
	"net/http"
	"time"

	"endorser/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID copies chi's request id (or the X-Request-ID header) into the
// request context under the key services read.
func RequestID(idFromRequest func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := idFromRequest(r)
			if reqID == "" {
				reqID = r.Header.Get("X-Request-ID")
			}
			if reqID != "" {
				r = r.WithContext(requestcontext.WithRequestID(r.Context(), reqID))
			}
			next.ServeHTTP(w, r)
		})
	}
}
