package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"edugate.org/internal/apperror"
	"edugate.org/internal/identity"
	"edugate.org/internal/token"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPairResponse struct {
	TokenType        string       `json:"token_type"`
	AccessToken      string       `json:"access_token"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshToken     string       `json:"refresh_token"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
	User             userResponse `json:"user"`
}

type userResponse struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Username string `json:"username,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.respond.Write(w, r, apperror.BadRequest(err.Error()))
		return
	}

	var fields []apperror.FieldError
	if strings.TrimSpace(req.Username) == "" {
		fields = append(fields, apperror.FieldError{Field: "username", Message: "username is required"})
	}
	if req.Password == "" {
		fields = append(fields, apperror.FieldError{Field: "password", Message: "password is required"})
	}
	if len(fields) > 0 {
		a.respond.Write(w, r, apperror.Validation("invalid login request", fields...))
		return
	}

	principal, err := a.creds.VerifyCredentials(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		a.respond.Write(w, r, err)
		return
	}

	pair, err := a.issuePair(principal)
	if err != nil {
		a.respond.Write(w, r, err)
		return
	}

	if a.sessions != nil {
		if _, err := a.sessions.Establish(r.Context(), w, r, principal.ID); err != nil {
			a.respond.Write(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.respond.Write(w, r, apperror.BadRequest(err.Error()))
		return
	}

	principal, err := a.tokens.VerifyVariant(req.RefreshToken, token.Refresh)
	if err != nil {
		a.respond.Write(w, r, token.AsAppError(err))
		return
	}

	pair, err := a.issuePair(principal)
	if err != nil {
		a.respond.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.sessions != nil {
		if err := a.sessions.Destroy(r.Context(), w, r); err != nil {
			a.respond.Write(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleMe echoes the principal resolved from the trusted headers; mounted
// behind the identity consumer.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := identity.FromContext(r.Context())
	if !ok {
		a.respond.Write(w, r, apperror.Unauthorized("authentication required"))
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: p.ID, Role: p.Role, Username: p.Username})
}

func (a *API) issuePair(p identity.Principal) (tokenPairResponse, error) {
	access, accessExp, err := a.tokens.Issue(p, token.Access)
	if err != nil {
		return tokenPairResponse{}, err
	}
	refresh, refreshExp, err := a.tokens.Issue(p, token.Refresh)
	if err != nil {
		return tokenPairResponse{}, err
	}
	return tokenPairResponse{
		TokenType:        "Bearer",
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		User:             userResponse{ID: p.ID, Role: p.Role, Username: p.Username},
	}, nil
}

// --- helpers ---

func (a *API) methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	a.respond.Write(w, r, apperror.BadRequest("method not allowed"))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
