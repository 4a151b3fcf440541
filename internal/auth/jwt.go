package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errNoSecret = errors.New("no signing secret configured")

// Claims are the token claims read by JWTVerifier.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier accepts HS256 tokens signed with a shared secret and requires
// the admin role. When a RoleLookup is set, the stored profile role wins over
// the role claim.
type JWTVerifier struct {
	secret []byte
	roles  RoleLookup
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier. roles may be nil.
func NewJWTVerifier(secret []byte, roles RoleLookup) *JWTVerifier {
	return &JWTVerifier{
		secret: secret,
		roles:  roles,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

func (v *JWTVerifier) Verify(ctx context.Context, raw string) (*Principal, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}

	if _, err := v.parser.ParseWithClaims(raw, claims, v.key); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := claims.Role

	if v.roles != nil {
		stored, err := v.roles.RoleOf(ctx, claims.Subject)

		switch {
		case errors.Is(err, ErrProfileNotFound):
			return nil, fmt.Errorf("%w: no profile for %s", ErrForbidden, claims.Subject)
		case err != nil:
			return nil, fmt.Errorf("%w: %w", ErrRoleUnavailable, err)
		}

		role = stored
	}

	if role != RoleAdmin {
		return nil, fmt.Errorf("%w: role %q", ErrForbidden, role)
	}

	return &Principal{Subject: claims.Subject, Role: role}, nil
}

// key refuses to verify anything when no secret is configured.
func (v *JWTVerifier) key(_ *jwt.Token) (any, error) {
	if len(v.secret) == 0 {
		return nil, errNoSecret
	}

	return v.secret, nil
}

// Sign issues an HS256 token for subject with role, valid for ttl.
func Sign(secret []byte, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
