package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cityscope/cityscope/internal/api/models"
)

// Recovery turns a handler panic into a logged error, a failed span and a
// 500 problem. When the handler had already started the response, the
// problem body is skipped; the client sees a truncated reply instead.
// http.ErrAbortHandler passes through so the server aborts the connection.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracked := &headerTracker{ResponseWriter: w}

			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}

				requestID := GetRequestID(r.Context())
				cause := fmt.Errorf("panic: %v", v)

				span := trace.SpanFromContext(r.Context())
				span.RecordError(cause, trace.WithStackTrace(true))
				span.SetStatus(codes.Error, "panic")

				log.Error().
					Str("request_id", requestID).
					Str("route", routePattern(r)).
					Str("method", r.Method).
					Bool("response_started", tracked.started).
					Bytes("stack", debug.Stack()).
					Err(cause).
					Msg("panic recovered")

				if tracked.started {
					return
				}
				models.NewInternalError(requestID, "an unexpected error occurred").
					At(r.URL.Path).
					Write(w)
			}()

			next.ServeHTTP(tracked, r)
		})
	}
}

// headerTracker notes whether the wrapped handler wrote anything.
type headerTracker struct {
	http.ResponseWriter
	started bool
}

func (t *headerTracker) WriteHeader(code int) {
	t.started = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *headerTracker) Write(b []byte) (int, error) {
	t.started = true
	return t.ResponseWriter.Write(b)
}

func (t *headerTracker) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}
