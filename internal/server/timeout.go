package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware bounds each request context. Upload processing is
// synchronous and the classify step calls an external provider, so the
// deadline is what keeps a stuck provider call from pinning the request.
// Cancellation is cooperative: handlers and steps observe ctx.Done().
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
