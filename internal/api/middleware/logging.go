package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/Harshitk-cp/concord/internal/metrics"
	"go.uber.org/zap"
)

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

const callerSlotKey contextKey = "caller_slot"

// callerSlot is filled by WithDID further down the chain once a signature
// has been verified.
type callerSlot struct {
	did string
}

// Logging returns middleware that logs each request with structured JSON
// output and counts it in the request metrics. Only a verified caller DID is
// logged; the unauthenticated header is not trusted.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slot := &callerSlot{}
			r = r.WithContext(context.WithValue(r.Context(), callerSlotKey, slot))

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			metrics.RecordHTTPRequest(r.Method, rw.statusCode)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.Int("status", rw.statusCode),
				zap.Int64("bytes", rw.written),
				zap.Duration("duration", duration),
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("did", slot.did),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if rw.statusCode >= http.StatusInternalServerError {
				logger.Error("http request", fields...)
				return
			}
			logger.Info("http request", fields...)
		})
	}
}
