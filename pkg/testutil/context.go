package testutil

import (
	"net/http"
	"time"

	"endorser/pkg/requestcontext"
)

// WithRequestTime pins the request clock.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
