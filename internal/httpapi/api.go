// Package httpapi is the HTTP surface of the auth service: login, token
// refresh, logout and principal echo, plus health and metrics endpoints.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"edugate.org/internal/apperror"
	"edugate.org/internal/audit"
	"edugate.org/internal/config"
	"edugate.org/internal/correlate"
	"edugate.org/internal/identity"
	"edugate.org/internal/obs"
	"edugate.org/internal/session"
	"edugate.org/internal/token"
)

// CredentialVerifier is the business-side collaborator that checks a login.
// It may raise any error from the closed taxonomy; this layer guarantees the
// correct wire response.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, username, password string) (identity.Principal, error)
}

// CredentialVerifierFunc adapts a function to CredentialVerifier.
type CredentialVerifierFunc func(ctx context.Context, username, password string) (identity.Principal, error)

func (f CredentialVerifierFunc) VerifyCredentials(ctx context.Context, username, password string) (identity.Principal, error) {
	return f(ctx, username, password)
}

// DenyAllCredentials rejects every login. Deployments must inject their own
// verifier; this default keeps an unwired process fail-closed.
var DenyAllCredentials = CredentialVerifierFunc(func(context.Context, string, string) (identity.Principal, error) {
	return identity.Principal{}, apperror.Unauthorized("invalid username or password")
})

// ReadyProbe checks backing stores for the readiness endpoint.
type ReadyProbe struct {
	DB    *sql.DB
	Redis *redis.Client
}

// Check pings whatever stores are configured.
func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	cfg        config.Config
	tokens     *token.Service
	sessions   *session.Monitor
	respond    *apperror.Responder
	creds      CredentialVerifier
	readyProbe ReadyProbe
	version    string
}

// New wires routes. The audit recorder observes the state-changing auth
// endpoints; passing a recorder over a nil store disables auditing.
func New(cfg config.Config, tokens *token.Service, sessions *session.Monitor, recorder *audit.Recorder, creds CredentialVerifier, rp ReadyProbe, version string) *API {
	if creds == nil {
		creds = DenyAllCredentials
	}
	a := &API{
		mux:        http.NewServeMux(),
		cfg:        cfg,
		tokens:     tokens,
		sessions:   sessions,
		respond:    apperror.NewResponder(!cfg.Hardened()),
		creds:      creds,
		readyProbe: rp,
		version:    version,
	}

	audited := recorder.Middleware(audit.SensitivitySensitive)
	consume := identity.TrustHeaders(a.respond)

	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.Handle("/v1/auth/login", audited(http.HandlerFunc(a.handleLogin)))
	a.mux.Handle("/v1/auth/refresh", audited(http.HandlerFunc(a.handleRefresh)))
	a.mux.Handle("/v1/auth/logout", audited(http.HandlerFunc(a.handleLogout)))
	a.mux.Handle("/v1/auth/me", consume(http.HandlerFunc(a.handleMe)))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		a.respond.Write(w, r, apperror.NotFound("resource not found"))
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = correlate.Recover(a.respond)(h)
	h = correlate.LoggingJSON(a.cfg.SlowThreshold.Std())(h)
	h = obs.Instrument(h)
	h = correlate.MaxBodyBytes(h, 1<<20)
	h = correlate.SecurityHeaders(h)
	h = correlate.RequestID(h)
	return h
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": a.cfg.Service,
		"version": a.version,
	})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
