package audit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"edugate.org/internal/identity"
	"edugate.org/internal/obs"
)

const (
	maxSnapshotBytes = 64 << 10
	storeTimeout     = 5 * time.Second
)

// Recorder drives the audit store from the request pipeline. A nil store
// disables auditing entirely.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder builds a recorder over the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Middleware audits state-changing requests on the wrapped routes, plus reads
// when the route is classified sensitive. The pending entry is written at
// request start and patched once the response is known; both writes are
// asynchronous and best effort.
func (rec *Recorder) Middleware(class Sensitivity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rec == nil || rec.store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rec.shouldAudit(r, class) {
				next.ServeHTTP(w, r)
				return
			}

			requestID := obs.RequestIDFromContext(r.Context())
			entry := &Entry{
				RequestID:   requestID,
				Timestamp:   rec.now().UTC(),
				Method:      r.Method,
				URL:         r.URL.String(),
				Sensitivity: class,
				RequestBody: Sanitize(rec.snapshotRequest(r)),
				Status:      StatusPending,
			}
			if p, ok := identity.FromContext(r.Context()); ok {
				entry.ActorID = p.ID
			}
			go rec.createPending(entry)

			cw := &captureWriter{ResponseWriter: w, code: http.StatusOK}
			start := rec.now()
			next.ServeHTTP(cw, r)
			duration := rec.now().Sub(start)

			final := Final{
				Status:       StatusCompleted,
				ResponseBody: Sanitize(cw.body.Bytes()),
				DurationMs:   duration.Milliseconds(),
			}
			if cw.code >= http.StatusBadRequest {
				final.Status = StatusError
				final.Error = fmt.Sprintf("HTTP %d", cw.code)
			}
			go rec.finalize(requestID, final)
		})
	}
}

func (rec *Recorder) shouldAudit(r *http.Request, class Sensitivity) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return class == SensitivitySensitive
	default:
		return true
	}
}

// snapshotRequest reads up to maxSnapshotBytes of the body and restores the
// reader for the handler.
func (rec *Recorder) snapshotRequest(r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}
	snapshot, err := io.ReadAll(io.LimitReader(r.Body, maxSnapshotBytes))
	if err != nil {
		return nil
	}
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(snapshot), r.Body), r.Body}
	return snapshot
}

func (rec *Recorder) createPending(entry *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := rec.store.CreatePending(ctx, entry); err != nil {
		obs.LogError("audit_create_failed", map[string]any{
			"request_id": entry.RequestID,
			"error":      err.Error(),
		})
	}
}

func (rec *Recorder) finalize(requestID string, final Final) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := rec.store.Finalize(ctx, requestID, final); err != nil {
		obs.LogError("audit_finalize_failed", map[string]any{
			"request_id": requestID,
			"error":      err.Error(),
		})
	}
}

// captureWriter tees the response body for the completion snapshot.
type captureWriter struct {
	http.ResponseWriter
	code int
	body bytes.Buffer
}

func (w *captureWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if w.body.Len() < maxSnapshotBytes {
		w.body.Write(p[:min(len(p), maxSnapshotBytes-w.body.Len())])
	}
	return w.ResponseWriter.Write(p)
}
