package restapi

import (
	"log/slog"
	"net/http"
	"time"

	"departureboard.app/internal/logging"
)

// statusRecorder remembers the first status a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode, rw.wroteHeader = code, true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// NewRequestLoggingMiddleware writes one access log line per request and
// hands handlers a logger tagged with the request id through
// logging.FromContext.
func NewRequestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	access := logger.With(slog.String("component", "http_server"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			id := GetRequestID(r.Context())

			scoped := logger
			if id != "" {
				scoped = logger.With(slog.String("request_id", id))
			}
			rec := newStatusRecorder(w)
			req := r.WithContext(logging.WithLogger(r.Context(), scoped))
			next.ServeHTTP(rec, req)

			elapsedMs := float64(time.Since(began).Microseconds()) / 1000
			logging.LogHTTPRequest(access, r.Method, r.URL.Path, rec.statusCode, elapsedMs,
				slog.String("request_id", id),
				slog.String("route", routeLabel(req)),
				slog.String("user_agent", r.Header.Get("User-Agent")))
		})
	}
}
