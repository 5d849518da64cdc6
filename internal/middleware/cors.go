// Package middleware holds the small set of HTTP middleware the local
// control API wires into its chi router (internal/controlapi), mostly
// adapted from the teacher's equivalent package.
package middleware

import "net/http"

// CORS returns middleware permitting cross-origin GET access from
// allowedOrigins. The control API is read-only (spec.md §7: dashboards
// only ever read broker state), so only GET and the OPTIONS preflight
// it implies are advertised — there is no mutating verb to gate here.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				// A wildcard-echoed origin plus Allow-Credentials lets any
				// site ride the browser's cookies/auth onto this origin;
				// only grant it to an explicitly named origin.
				if explicitlyAllowed(allowedOrigins, origin) {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowedOrigins []string, origin string) bool {
	for _, o := range allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func explicitlyAllowed(allowedOrigins []string, origin string) bool {
	for _, o := range allowedOrigins {
		if o != "*" && o == origin {
			return true
		}
	}
	return false
}
