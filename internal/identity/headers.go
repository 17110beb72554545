package identity

import (
	"errors"
	"net/http"
	"strings"
)

// Identity headers set only by the trusted edge and read literally downstream.
// Past the edge they are unauthenticated: the design assumes internal services
// are network-unreachable except through the gateway. That isolation is an
// operational assumption, not enforced here.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
	HeaderUserName = "X-User-Name"
)

// ErrMissingIdentity indicates a request without the required trusted headers.
var ErrMissingIdentity = errors.New("identity: missing trusted identity headers")

// SetHeaders writes the principal into the trusted headers, overwriting
// anything a client may have sent.
func SetHeaders(h http.Header, p Principal) {
	h.Set(HeaderUserID, p.ID)
	h.Set(HeaderUserRole, p.Role)
	if p.Username != "" {
		h.Set(HeaderUserName, p.Username)
	} else {
		h.Del(HeaderUserName)
	}
}

// StripHeaders removes all identity headers. The gateway applies this to every
// inbound request so clients can never pre-set an identity.
func StripHeaders(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderUserRole)
	h.Del(HeaderUserName)
}

// FromHeaders builds a principal from the trusted headers. The id and role are
// required; the display name is optional.
func FromHeaders(h http.Header) (Principal, error) {
	id := strings.TrimSpace(h.Get(HeaderUserID))
	role := strings.TrimSpace(h.Get(HeaderUserRole))
	if id == "" || role == "" {
		return Principal{}, ErrMissingIdentity
	}
	return Principal{
		ID:       id,
		Role:     strings.ToLower(role),
		Username: strings.TrimSpace(h.Get(HeaderUserName)),
	}, nil
}
