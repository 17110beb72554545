package audit

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"edugate.org/internal/identity"
	"edugate.org/internal/obs"
)

func init() {
	obs.Logger().SetOutput(io.Discard)
}

type channelStore struct {
	pending chan *Entry
	finals  chan Final
}

func newChannelStore() *channelStore {
	return &channelStore{
		pending: make(chan *Entry, 4),
		finals:  make(chan Final, 4),
	}
}

func (s *channelStore) CreatePending(ctx context.Context, e *Entry) error {
	s.pending <- e
	return nil
}

func (s *channelStore) Finalize(ctx context.Context, requestID string, final Final) error {
	s.finals <- final
	return nil
}

func (s *channelStore) waitPending(t *testing.T) *Entry {
	t.Helper()
	select {
	case e := <-s.pending:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no pending entry recorded")
		return nil
	}
}

func (s *channelStore) waitFinal(t *testing.T) Final {
	t.Helper()
	select {
	case f := <-s.finals:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no finalization recorded")
		return Final{}
	}
}

func TestMiddlewareRecordsLifecycle(t *testing.T) {
	store := newChannelStore()
	rec := NewRecorder(store)

	handler := rec.Middleware(SensitivitySensitive)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "hunter2") {
			t.Errorf("handler must see the original body, got %s", body)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"access_token":"jwt-here","user":{"id":"42"}}`))
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		bytes.NewBufferString(`{"username":"a.petrova","password":"hunter2"}`))
	req = req.WithContext(obs.WithRequestID(req.Context(), "req-audit-1"))
	req = req.WithContext(identity.WithPrincipal(req.Context(), identity.Principal{ID: "42", Role: "student"}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := store.waitPending(t)
	if entry.RequestID != "req-audit-1" || entry.Method != http.MethodPost {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Status != StatusPending {
		t.Fatalf("entry must start pending, got %s", entry.Status)
	}
	if entry.ActorID != "42" {
		t.Fatalf("actor not captured: %+v", entry)
	}
	if !strings.Contains(string(entry.RequestBody), Redacted) ||
		strings.Contains(string(entry.RequestBody), "hunter2") {
		t.Fatalf("request snapshot not sanitized: %s", entry.RequestBody)
	}

	final := store.waitFinal(t)
	if final.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if strings.Contains(string(final.ResponseBody), "jwt-here") {
		t.Fatalf("response snapshot not sanitized: %s", final.ResponseBody)
	}
	if final.Error != "" {
		t.Fatalf("unexpected error field: %q", final.Error)
	}
}

func TestMiddlewareMarksFailedRequests(t *testing.T) {
	store := newChannelStore()
	rec := NewRecorder(store)

	handler := rec.Middleware(SensitivityNormal)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	store.waitPending(t)
	final := store.waitFinal(t)
	if final.Status != StatusError {
		t.Fatalf("expected error status, got %s", final.Status)
	}
	if final.Error != "HTTP 401" {
		t.Fatalf("unexpected error detail: %q", final.Error)
	}
}

func TestMiddlewareSkipsNormalReads(t *testing.T) {
	store := newChannelStore()
	rec := NewRecorder(store)

	handler := rec.Middleware(SensitivityNormal)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/courses", nil))

	select {
	case e := <-store.pending:
		t.Fatalf("normal GET must not be audited, got %+v", e)
	default:
	}
}

func TestMiddlewareAuditsSensitiveReads(t *testing.T) {
	store := newChannelStore()
	rec := NewRecorder(store)

	handler := rec.Middleware(SensitivitySensitive)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/grades/42", nil))

	entry := store.waitPending(t)
	if entry.Sensitivity != SensitivitySensitive {
		t.Fatalf("unexpected sensitivity: %s", entry.Sensitivity)
	}
	store.waitFinal(t)
}

func TestMiddlewareNilStorePassesThrough(t *testing.T) {
	rec := NewRecorder(nil)
	called := false
	handler := rec.Middleware(SensitivitySensitive)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil))
	if !called {
		t.Fatal("handler not reached with auditing disabled")
	}
}
