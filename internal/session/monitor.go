package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"edugate.org/internal/apperror"
	"edugate.org/internal/config"
	"edugate.org/internal/correlate"
	"edugate.org/internal/ids"
	"edugate.org/internal/obs"
)

// Monitor enforces session integrity on cookie-based flows.
type Monitor struct {
	store      Store
	respond    *apperror.Responder
	cookieName string
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

// MonitorOption configures the monitor.
type MonitorOption func(*Monitor)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMonitor builds the monitor. Cookies are Secure in hardened mode.
func NewMonitor(cfg config.Session, store Store, respond *apperror.Responder, hardened bool, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		store:      store,
		respond:    respond,
		cookieName: cfg.CookieName,
		ttl:        cfg.TTL.Std(),
		secure:     hardened,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Establish creates a session bound to the requesting client's fingerprint
// and sets the session cookie.
func (m *Monitor) Establish(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string) (*Session, error) {
	now := m.now().UTC()
	sess := &Session{
		ID:          ids.New(),
		UserID:      userID,
		Fingerprint: Fingerprint(r.UserAgent(), correlate.ClientIP(r)),
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	m.setCookie(w, sess.ID)
	return sess, nil
}

// Destroy deletes the session named by the request cookie, if any, and clears
// the cookie.
func (m *Monitor) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	defer m.clearCookie(w)
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	if err := m.store.Delete(ctx, cookie.Value); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Guard validates the request's session. No active session or bound user,
// a fingerprint mismatch (hijack signal, even before nominal expiry) and an
// elapsed expiry all destroy the session and reject; otherwise the session is
// touched to extend validity. Store I/O errors also reject: never allow on
// doubt.
func (m *Monitor) Guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		cookie, err := r.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			m.reject(w, r, "no active session")
			return
		}

		sess, err := m.store.Find(ctx, cookie.Value)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				obs.LogError("session_store_failed", map[string]any{
					"request_id": obs.RequestIDFromContext(ctx),
					"error":      err.Error(),
				})
			}
			m.reject(w, r, "no active session")
			return
		}
		if sess.UserID == "" {
			m.destroyAndReject(ctx, w, r, sess.ID, "no active session")
			return
		}

		now := m.now().UTC()
		if now.After(sess.ExpiresAt) {
			m.destroyAndReject(ctx, w, r, sess.ID, "session expired")
			return
		}

		current := Fingerprint(r.UserAgent(), correlate.ClientIP(r))
		if sess.Fingerprint != current {
			obs.LogRequest(map[string]any{
				"ts":         now.Format(time.RFC3339Nano),
				"level":      "warn",
				"msg":        "session_hijack_suspected",
				"request_id": obs.RequestIDFromContext(ctx),
				"session_id": sess.ID,
				"user_id":    sess.UserID,
			})
			m.destroyAndReject(ctx, w, r, sess.ID, "session integrity check failed")
			return
		}

		// Touch: extend validity. Read-then-write, last-write-wins.
		sess.ExpiresAt = now.Add(m.ttl)
		if err := m.store.Save(ctx, sess); err != nil {
			obs.LogError("session_touch_failed", map[string]any{
				"request_id": obs.RequestIDFromContext(ctx),
				"error":      err.Error(),
			})
			m.reject(w, r, "no active session")
			return
		}
		m.setCookie(w, sess.ID)

		next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))
	})
}

// Sweep independently invalidates sessions whose expiry has elapsed even if
// the backing store has not purged them. Runs until the context is canceled.
func (m *Monitor) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := m.store.DeleteExpired(ctx, m.now().UTC())
			if err != nil {
				obs.LogError("session_sweep_failed", map[string]any{"error": err.Error()})
				continue
			}
			if removed > 0 {
				obs.LogRequest(map[string]any{
					"ts":      m.now().UTC().Format(time.RFC3339Nano),
					"level":   "info",
					"msg":     "session_sweep",
					"removed": removed,
				})
			}
		}
	}
}

func (m *Monitor) destroyAndReject(ctx context.Context, w http.ResponseWriter, r *http.Request, id, msg string) {
	if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		obs.LogError("session_destroy_failed", map[string]any{
			"request_id": obs.RequestIDFromContext(ctx),
			"error":      err.Error(),
		})
	}
	m.reject(w, r, msg)
}

func (m *Monitor) reject(w http.ResponseWriter, r *http.Request, msg string) {
	m.clearCookie(w)
	m.respond.Write(w, r, apperror.Unauthorized(msg))
}

func (m *Monitor) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (m *Monitor) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}
