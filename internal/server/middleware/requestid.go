package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the context key for the request ID.
const RequestIDKey contextKey = "request_id"

// maxClientRequestIDLen caps client-supplied request IDs. IDs end up in
// every log line, so an unbounded header would let a client bloat or garble
// the log stream.
const maxClientRequestIDLen = 64

// RequestID assigns each request an ID that follows it through logs and the
// response. A client may propagate its own via X-Request-ID; it is accepted
// only if it is short and printable, otherwise a UUID v7 is generated. The
// v7 time ordering keeps generated IDs roughly sortable by arrival when
// grepping logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitizeRequestID(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sanitizeRequestID returns the candidate if it is usable as-is, else "".
func sanitizeRequestID(id string) string {
	if id == "" || len(id) > maxClientRequestIDLen {
		return ""
	}
	if strings.ContainsFunc(id, func(r rune) bool { return r < 0x21 || r > 0x7e }) {
		return ""
	}
	return id
}

// GetRequestID extracts the request ID from the context. Returns an empty
// string if no request ID is present.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
