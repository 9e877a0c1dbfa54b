package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routePattern prefers the chi pattern so metrics and logs group by route
// rather than by concrete ID. It falls back to the raw path before routing.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// defaultStatus treats an unwritten status as the implicit 200.
func defaultStatus(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}
