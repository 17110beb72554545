// Package correlate wraps the whole request chain: correlation id, timing and
// structured request logs. It is a pure observer; removing it changes nothing
// about request-handling correctness.
package correlate

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"edugate.org/internal/apperror"
	"edugate.org/internal/obs"
)

// HeaderRequestID carries the correlation id between services.
const HeaderRequestID = "X-Request-Id"

// RequestID reuses an inbound correlation id if one exists, otherwise mints
// one, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, rid)
		ctx := obs.WithRequestID(r.Context(), rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingJSON emits one structured line per completed request with status,
// duration and response size. Requests slower than the threshold are flagged
// at warn severity; an abnormal client disconnect is still logged.
func LoggingJSON(slowThreshold time.Duration) func(http.Handler) http.Handler {
	if slowThreshold <= 0 {
		slowThreshold = 3 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &recordingWriter{ResponseWriter: w, code: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rw, r)
			duration := time.Since(start)

			level := "info"
			entry := map[string]any{
				"ts":          time.Now().UTC().Format(time.RFC3339Nano),
				"msg":         "request_complete",
				"request_id":  obs.RequestIDFromContext(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rw.code,
				"duration_ms": duration.Milliseconds(),
				"bytes":       rw.bytes,
				"remote":      ClientIP(r),
				"user_agent":  r.UserAgent(),
			}
			if duration > slowThreshold {
				level = "warn"
				entry["slow"] = true
			}
			if r.Context().Err() != nil {
				entry["aborted"] = true
			}
			entry["level"] = level
			obs.LogRequest(entry)
		})
	}
}

// Recover converts in-pipeline panics into Internal responses so a defective
// handler never crashes the process from inside request handling. Panics on
// other goroutines still terminate the process (crash-and-restart).
func Recover(respond *apperror.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				respond.Write(w, r, apperror.Internal(fmt.Errorf("panic: %v", rec)))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders applies baseline hardening headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// MaxBodyBytes limits request body size.
func MaxBodyBytes(next http.Handler, maxBytes int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		next.ServeHTTP(w, r)
	})
}

// ClientIP resolves the source address, honoring X-Forwarded-For (first hop).
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// recordingWriter captures status code and body size for the end line.
type recordingWriter struct {
	http.ResponseWriter
	code  int
	bytes int
}

func (w *recordingWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}
