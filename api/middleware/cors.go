package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// Origins used when STOREFRONT_CORS_ALLOWED_ORIGINS is empty: the Expo dev
// server and Expo web.
var devOrigins = []string{"http://localhost:8081", "http://localhost:19006"}

// CORS applies the storefront origin policy. Device tokens travel in the
// Authorization header, never in cookies, so credentials stay disabled.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := normalizeOrigins(origins)
	if len(allowed) == 0 {
		allowed = devOrigins
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Retry-After", replayedHeader},
		MaxAge:         300,
	})
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
