package token

import (
	"errors"

	"edugate.org/internal/apperror"
)

// AsAppError is the token-family adapter into the closed error union. Both
// token failures map to Unauthorized with safe generic messages; callers that
// need the edge 401/403 split (the gateway) branch on the sentinels instead.
func AsAppError(err error) *apperror.Error {
	switch {
	case errors.Is(err, ErrMissingToken):
		return apperror.Unauthorized("missing bearer token")
	case errors.Is(err, ErrInvalidToken):
		return apperror.Unauthorized("invalid or expired token")
	default:
		return apperror.From(err)
	}
}
