// Package middleware provides HTTP middleware for the telemetry API.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// maxInboundIDLen caps request IDs accepted from callers so a hostile
// client cannot inflate every log line on the request path.
const maxInboundIDLen = 128

// RequestID attaches a correlation ID to each request. An inbound
// X-Request-Id from the gateway is honored when it fits; otherwise a
// fresh one is minted. The ID is echoed on the response and stored in
// the request context for handlers and the logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" || len(id) > maxInboundIDLen {
			id = "req_" + uuid.NewString()
		}

		w.Header().Set("X-Request-Id", id)

		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the correlation ID stored by RequestID, or ""
// when the middleware did not run.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
