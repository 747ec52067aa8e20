package middleware

import (
	"net/http"
	"os"

	"github.com/titorm/nexus-saude-sub001/internal/api/models"
)

// securityHeaders are applied to every response. Responses carry patient
// vitals and alert details, so caching is disabled outright on top of the
// usual browser hardening set.
var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
	"Permissions-Policy":        "geolocation=(), camera=(), microphone=()",
	"Cache-Control":             "no-store",
}

// SecurityHeaders adds the standard hardening headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range securityHeaders {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

// RequireTLS rejects plaintext requests when REQUIRE_TLS=true. The check
// reads X-Forwarded-Proto as set by the load balancer; requests without
// the header (direct connections, local development) always pass.
func RequireTLS(next http.Handler) http.Handler {
	enforce := os.Getenv("REQUIRE_TLS") == "true"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if enforce {
			if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" && proto != "https" {
				problem := models.NewProblem(
					"https://api.nexus-saude.com/problems/tls-required",
					"TLS required",
					http.StatusForbidden,
					GetRequestID(r.Context()),
				)
				problem.Detail = "This endpoint requires HTTPS"
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
