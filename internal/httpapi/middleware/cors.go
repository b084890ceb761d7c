// Package middleware holds HTTP middleware shared across the read API.
package middleware

import "net/http"

// CORS adds permissive cross-origin headers so a browser dashboard or
// the watch TUI's HTTP fallback can call the read API from any origin.
//
// Adapted from control_plane/middleware/cors.go, dropping the teacher's
// X-Tenant-ID allowance since rigwatch has no tenancy concept.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
