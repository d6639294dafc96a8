package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// maxPayloadSize bounds request bodies to guard against large-payload
// abuse.
const maxPayloadSize = 1 * 1024 * 1024

type contextKey int

const requestIDKey contextKey = 0

// requestIDMiddleware stamps every request with a UUID used to
// correlate the error envelope's request_id field with structured
// logs.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// sizeLimitMiddleware rejects bodies larger than maxPayloadSize before
// a handler's json.Decode ever sees them.
func sizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxPayloadSize)
		next.ServeHTTP(w, r)
	})
}
