package session

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"edugate.org/internal/apperror"
	"edugate.org/internal/config"
	"edugate.org/internal/obs"
)

func init() {
	obs.Logger().SetOutput(io.Discard)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testMonitor(t *testing.T) (*Monitor, *MemoryStore, *fakeClock) {
	t.Helper()
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Now().UTC()}
	cfg := config.Session{
		CookieName: "edugate_session",
		TTL:        config.Duration(30 * time.Minute),
	}
	m := NewMonitor(cfg, store, apperror.NewResponder(true), false, WithClock(clock.Now))
	return m, store, clock
}

func clientRequest(target, userAgent string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("User-Agent", userAgent)
	req.RemoteAddr = "198.51.100.7:40000"
	return req
}

func establish(t *testing.T, m *Monitor, userAgent string) *http.Cookie {
	t.Helper()
	req := clientRequest("/v1/auth/login", userAgent)
	rec := httptest.NewRecorder()
	if _, err := m.Establish(req.Context(), rec, req, "user-42"); err != nil {
		t.Fatalf("Establish: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one session cookie, got %d", len(cookies))
	}
	return cookies[0]
}

func guard(m *Monitor) (http.Handler, *bool) {
	reached := false
	h := m.Guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &reached
}

func TestEstablishSetsCookie(t *testing.T) {
	m, store, _ := testMonitor(t)
	cookie := establish(t, m, "ua-1")

	if cookie.Name != "edugate_session" || cookie.Value == "" {
		t.Fatalf("unexpected cookie: %+v", cookie)
	}
	if !cookie.HttpOnly {
		t.Fatal("session cookie must be HttpOnly")
	}
	if store.Len() != 1 {
		t.Fatalf("expected one stored session, got %d", store.Len())
	}
}

func TestGuardAllowsValidSession(t *testing.T) {
	m, _, _ := testMonitor(t)
	cookie := establish(t, m, "ua-1")
	handler, reached := guard(m)

	req := clientRequest("/v1/profile", "ua-1")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !*reached || rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d (reached=%v)", rec.Code, *reached)
	}
}

func TestGuardAttachesSessionToContext(t *testing.T) {
	m, _, _ := testMonitor(t)
	cookie := establish(t, m, "ua-1")

	var seen *Session
	handler := m.Guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	req := clientRequest("/v1/profile", "ua-1")
	req.AddCookie(cookie)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen == nil || seen.UserID != "user-42" {
		t.Fatalf("expected session in context, got %+v", seen)
	}
}

func TestGuardRejectsWithoutCookie(t *testing.T) {
	m, _, _ := testMonitor(t)
	handler, reached := guard(m)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, clientRequest("/v1/profile", "ua-1"))

	if *reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (reached=%v)", rec.Code, *reached)
	}
}

func TestGuardRejectsUnknownSession(t *testing.T) {
	m, _, _ := testMonitor(t)
	handler, reached := guard(m)

	req := clientRequest("/v1/profile", "ua-1")
	req.AddCookie(&http.Cookie{Name: "edugate_session", Value: "no-such-session"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if *reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (reached=%v)", rec.Code, *reached)
	}
}

func TestGuardFingerprintMismatchDestroysSession(t *testing.T) {
	m, store, _ := testMonitor(t)
	cookie := establish(t, m, "ua-1")
	handler, reached := guard(m)

	// Same cookie from a different client, well before nominal expiry.
	req := clientRequest("/v1/profile", "ua-2")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if *reached {
		t.Fatal("hijacked session must not reach the handler")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if store.Len() != 0 {
		t.Fatal("suspect session must be destroyed")
	}

	// The original client is logged out too.
	req = clientRequest("/v1/profile", "ua-1")
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after destruction, got %d", rec.Code)
	}
}

func TestGuardRejectsExpiredSession(t *testing.T) {
	m, store, clock := testMonitor(t)
	cookie := establish(t, m, "ua-1")
	handler, reached := guard(m)

	clock.Advance(31 * time.Minute)

	req := clientRequest("/v1/profile", "ua-1")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if *reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (reached=%v)", rec.Code, *reached)
	}
	if store.Len() != 0 {
		t.Fatal("expired session must be destroyed")
	}
}

func TestGuardTouchExtendsExpiry(t *testing.T) {
	m, store, clock := testMonitor(t)
	cookie := establish(t, m, "ua-1")
	handler, _ := guard(m)

	clock.Advance(20 * time.Minute)

	req := clientRequest("/v1/profile", "ua-1")
	req.AddCookie(cookie)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	sess, err := store.Find(context.Background(), cookie.Value)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	want := clock.Now().UTC().Add(30 * time.Minute)
	if !sess.ExpiresAt.Equal(want) {
		t.Fatalf("expiry not extended: got %v, want %v", sess.ExpiresAt, want)
	}

	// 20 more minutes would have crossed the original expiry; the touch
	// keeps the session alive.
	clock.Advance(20 * time.Minute)
	req = clientRequest("/v1/profile", "ua-1")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected touched session to remain valid, got %d", rec.Code)
	}
}

func TestDestroyDeletesAndClearsCookie(t *testing.T) {
	m, store, _ := testMonitor(t)
	cookie := establish(t, m, "ua-1")

	req := clientRequest("/v1/auth/logout", "ua-1")
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	if err := m.Destroy(req.Context(), rec, req); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	if store.Len() != 0 {
		t.Fatal("session not removed")
	}
	cleared := rec.Result().Cookies()
	if len(cleared) != 1 || cleared[0].MaxAge >= 0 {
		t.Fatalf("expected a clearing cookie, got %+v", cleared)
	}
}

func TestDestroyWithoutCookieIsNoop(t *testing.T) {
	m, _, _ := testMonitor(t)
	req := clientRequest("/v1/auth/logout", "ua-1")
	if err := m.Destroy(req.Context(), httptest.NewRecorder(), req); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
}

func TestDeleteExpiredRemovesOnlyElapsed(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()
	ctx := context.Background()

	_ = store.Save(ctx, &Session{ID: "live", UserID: "u1", ExpiresAt: now.Add(time.Hour)})
	_ = store.Save(ctx, &Session{ID: "dead", UserID: "u2", ExpiresAt: now.Add(-time.Hour)})

	removed, err := store.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := store.Find(ctx, "live"); err != nil {
		t.Fatalf("live session lost: %v", err)
	}
	if _, err := store.Find(ctx, "dead"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for swept session, got %v", err)
	}
}

func TestFingerprintBindsAgentAndIP(t *testing.T) {
	base := Fingerprint("ua-1", "198.51.100.7")
	if base != Fingerprint("ua-1", "198.51.100.7") {
		t.Fatal("fingerprint must be deterministic")
	}
	if base == Fingerprint("ua-2", "198.51.100.7") {
		t.Fatal("fingerprint must depend on user agent")
	}
	if base == Fingerprint("ua-1", "203.0.113.9") {
		t.Fatal("fingerprint must depend on source ip")
	}
}
