package server

import (
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"link-router/internal/common/errors"
	"link-router/internal/common/logging"
	"link-router/internal/common/ratelimit"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// requestIDMiddleware propagates X-Request-ID, generating one when absent,
// and stores it in the request context for the logger.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// loggingMiddleware logs all HTTP requests with method, path, status, and duration
func loggingMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next.ServeHTTP(wrapped, r)

			fields := []logging.Field{
				{"method", r.Method},
				{"path", r.URL.Path},
				{"status", wrapped.statusCode},
				{"duration_ms", time.Since(start).Milliseconds()},
				{"remote_addr", r.RemoteAddr},
			}
			if r.URL.RawQuery != "" {
				fields = append(fields, logging.Field{"query", r.URL.RawQuery})
			}

			log := logger.WithContext(r.Context())
			if wrapped.statusCode >= 500 {
				log.Error("HTTP request completed", nil, fields...)
			} else if wrapped.statusCode >= 400 {
				log.Warn("HTTP request completed", fields...)
			} else {
				log.Debug("HTTP request completed", fields...)
			}
		})
	}
}

// rateLimitMiddleware rejects callers that exceed their token bucket with 429.
// A nil limiter passes every request through.
func rateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientKey(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, errors.ValidationError("rate limit exceeded").WithCode("rate_limited"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
