package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowedMethods = "GET, POST, OPTIONS"
	corsAllowedHeaders = "Authorization, Content-Type"
)

// Add CORS headers for requests from allowed origins and answer preflight requests
// "*" allows any origin
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			allowed, wildcard := originAllowed(origin, allowedOrigins)
			if allowed {
				header := w.Header()
				header.Add("Vary", "Origin")
				header.Set("Access-Control-Allow-Methods", corsAllowedMethods)
				header.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				if wildcard {
					header.Set("Access-Control-Allow-Origin", "*")
				} else {
					header.Set("Access-Control-Allow-Origin", origin)
				}
			}

			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowed []string) (ok bool, wildcard bool) {
	for _, candidate := range allowed {
		if candidate == "*" {
			return true, true
		}
		if strings.EqualFold(candidate, origin) {
			return true, false
		}
	}
	return false, false
}
