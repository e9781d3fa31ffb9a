package middleware

import (
	"net/http"
	"time"

	"github.com/basesafe/pool-service/pkg/logger"
)

// RequestLogger logs one line per handled request. Probe endpoints such
// as /healthz and /metrics are skipped to keep the log readable.
type RequestLogger struct {
	log       *logger.Logger
	skipPaths map[string]bool
}

// NewRequestLogger creates a request logging middleware.
func NewRequestLogger(log *logger.Logger, skipPaths ...string) *RequestLogger {
	if log == nil {
		log = logger.NewDefault("http")
	}
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return &RequestLogger{log: log, skipPaths: skip}
}

// Handler returns the logging middleware handler.
func (l *RequestLogger) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		rec := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		entry := l.log.
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", rec.status).
			WithField("duration_ms", time.Since(start).Milliseconds())

		if rec.status >= http.StatusInternalServerError {
			entry.Error("request failed")
			return
		}
		entry.Info("request handled")
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
