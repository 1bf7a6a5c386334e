// Package requesttime pins one "now" per request. Freshness checks, cache
// expiry and rejection timestamps within a request all agree on it.
package requesttime

import (
	"net/http"
	"time"

	"civic/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
