package identity

import (
	"net/http"
	"strings"

	"edugate.org/internal/apperror"
)

const authenticateHeader = `Bearer realm="edugate"`

// TrustHeaders is the downstream identity consumer: it builds the request
// principal from the headers set by the edge. This is the only authentication
// most internal services run; they never re-verify a signature. Either
// required header missing fails closed.
func TrustHeaders(respond *apperror.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := FromHeaders(r.Header)
			if err != nil {
				w.Header().Set("WWW-Authenticate", authenticateHeader)
				respond.Write(w, r, apperror.Unauthorized("authentication required"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole gates a handler by an allowed-role set. A request without a
// principal is unauthenticated; a principal with a role outside the set is
// forbidden, and the response enumerates the allowed roles in the order
// supplied. Role names are not secret. Ownership checks stay with the
// business handler.
func RequireRole(respond *apperror.Responder, allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", authenticateHeader)
				respond.Write(w, r, apperror.Unauthorized("authentication required"))
				return
			}
			for _, role := range allowed {
				if p.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("WWW-Authenticate", authenticateHeader)
			respond.Write(w, r, apperror.Forbidden(
				"access restricted to roles: "+strings.Join(allowed, ", ")))
		})
	}
}
