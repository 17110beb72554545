// Package token signs and verifies the compact bearer tokens shared by every
// service. Issuance and verification are pure and stateless: any service
// holding the process-wide secret can verify a token minted elsewhere.
// There is no revocation or blocklist; a leaked token stays valid until it
// expires. Known limitation.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"edugate.org/internal/config"
	"edugate.org/internal/identity"
	"edugate.org/internal/ids"
)

// Variant selects the TTL and intended use of an issued token.
type Variant string

const (
	Access  Variant = "access"
	Refresh Variant = "refresh"
)

// The missing/invalid distinction is a client contract: a missing token means
// "log in", an invalid or expired one means the client may refresh silently.
var (
	ErrMissingToken = errors.New("token: missing bearer token")
	ErrInvalidToken = errors.New("token: invalid or expired token")
)

const bearerPrefix = "Bearer "

// Claims is the signed token payload.
type Claims struct {
	Role     string `json:"role"`
	Username string `json:"username,omitempty"`
	TokenUse string `json:"token_use"`
	jwt.RegisteredClaims
}

// Service issues and verifies tokens with HS256 and a shared secret.
type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the token service from the shared token configuration.
func NewService(cfg config.Token, opts ...Option) (*Service, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("token: secret is not configured")
	}
	svc := &Service{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL.Std(),
		refreshTTL: cfg.RefreshTTL.Std(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue signs a token for the principal. TTL is chosen by variant from the
// shared configuration.
func (s *Service) Issue(p identity.Principal, v Variant) (string, time.Time, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return "", time.Time{}, errors.New("token: principal id is required")
	}
	role := strings.ToLower(strings.TrimSpace(p.Role))
	if role == "" {
		return "", time.Time{}, errors.New("token: principal role is required")
	}
	var ttl time.Duration
	switch v {
	case Access:
		ttl = s.accessTTL
	case Refresh:
		ttl = s.refreshTTL
	default:
		return "", time.Time{}, errors.New("token: unknown variant")
	}

	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		Role:     role,
		Username: strings.TrimSpace(p.Username),
		TokenUse: string(v),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ids.New(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify validates an access token and returns the embedded principal.
func (s *Service) Verify(raw string) (identity.Principal, error) {
	return s.VerifyVariant(raw, Access)
}

// VerifyVariant validates a token of the given variant. An empty string is a
// missing token; anything present but unparsable, tampered, expired or of the
// wrong variant is invalid.
func (s *Service) VerifyVariant(raw string, v Variant) (identity.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return identity.Principal{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return identity.Principal{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return identity.Principal{}, ErrInvalidToken
	}
	if claims.TokenUse != string(v) {
		return identity.Principal{}, ErrInvalidToken
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" || strings.TrimSpace(claims.Role) == "" {
		return identity.Principal{}, ErrInvalidToken
	}
	return identity.Principal{
		ID:       sub,
		Role:     strings.ToLower(claims.Role),
		Username: claims.Username,
	}, nil
}

// BearerFromHeader extracts the raw token from an Authorization header value.
// An absent header and a header without the Bearer scheme yield the identical
// missing-token error.
func BearerFromHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrMissingToken
	}
	raw := strings.TrimSpace(header[len(bearerPrefix):])
	if raw == "" {
		return "", ErrMissingToken
	}
	return raw, nil
}
