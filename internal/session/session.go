// Package session binds cookie sessions to a client fingerprint, detects
// hijack signals and extends or expires sessions. Every ambiguous case fails
// closed.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrNotFound indicates an unknown or already destroyed session.
var ErrNotFound = errors.New("session: not found")

// Session is persisted externally and mutated by touch on each authenticated
// request. Concurrent touch/destroy of the same session races last-write-wins;
// no optimistic locking is applied.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store is the external keyed session store. No transactions are assumed.
type Store interface {
	Find(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// Fingerprint derives the client binding from user agent and source IP.
func Fingerprint(userAgent, ip string) string {
	sum := sha256.Sum256([]byte(userAgent + "|" + ip))
	return hex.EncodeToString(sum[:])
}

type sessionContextKey struct{}

// WithSession attaches the validated session to the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext returns the validated session if the guard attached one.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}
