package middleware

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/contact-intake/internal/auth"
	"go.uber.org/zap"
)

// RequireAdmin returns an operation middleware that admits only callers
// whose bearer token verifies as an administrator. The principal is stored
// in the request context.
func RequireAdmin(
	api huma.API,
	verifier auth.Verifier,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		token, err := auth.BearerToken(ctx.Header("Authorization"))
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", `Bearer`)
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "unauthorized")

			return
		}

		principal, err := verifier.Verify(ctx.Context(), token)
		if err != nil {
			status, msg := authStatus(err)

			logger.Warn("admin authentication failed",
				zap.Int("status", status),
				zap.String("clientIp", clientIP(ctx)),
				zap.Error(err),
			)

			_ = huma.WriteErr(api, ctx, status, msg)

			return
		}

		next(huma.WithContext(ctx, auth.WithPrincipal(ctx.Context(), principal)))
	}
}

func authStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrMissingToken), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusServiceUnavailable, "authorization unavailable"
	}
}
