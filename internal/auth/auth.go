// Package auth verifies administrator bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RoleAdmin is the role required for administrative endpoints.
const RoleAdmin = "admin"

var (
	ErrMissingToken    = errors.New("missing bearer token")
	ErrInvalidToken    = errors.New("invalid bearer token")
	ErrForbidden       = errors.New("forbidden")
	ErrProfileNotFound = errors.New("profile not found")
	ErrRoleUnavailable = errors.New("role lookup unavailable")
)

// Principal is an authenticated caller.
type Principal struct {
	Subject string
	Role    string
}

// Verifier turns a raw bearer token into an authorized principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// RoleLookup resolves the role stored for a subject.
// It returns ErrProfileNotFound when the subject has no profile.
type RoleLookup interface {
	RoleOf(ctx context.Context, subject string) (string, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("%w: expected 'Bearer <token>'", ErrMissingToken)
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrMissingToken)
	}

	return token, nil
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)

	return p, ok && p != nil
}
