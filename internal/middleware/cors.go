// Package middleware holds the chi middleware shared by every route.
package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// OriginChecker returns a predicate accepting requests whose Origin is listed in allowed.
// An empty list accepts everything, as does a request without an Origin header.
func OriginChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[normalizeOrigin(origin)] = struct{}{}
	}

	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[normalizeOrigin(origin)]
		return ok
	}
}

// CORS answers preflight requests and sets the CORS headers for allowed origins.
func CORS(allowed []string) func(http.Handler) http.Handler {
	check := OriginChecker(allowed)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && check(r) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Admin-Token")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func normalizeOrigin(origin string) string {
	origin = strings.TrimSpace(origin)
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(strings.TrimSuffix(origin, "/"))
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
