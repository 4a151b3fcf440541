package middleware

import (
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/contact-intake/internal/ratelimit"
	"go.uber.org/zap"
)

// Admission returns a Huma middleware that guards operations carrying a
// ratelimit.EndpointConfig. The controller is chosen by the operation scope
// and callers are keyed by scope and client IP. Operations without config,
// with Disabled set, or whose scope has no controller pass through.
func Admission(
	api huma.API,
	controllers map[string]ratelimit.Controller,
	logger *zap.Logger,
) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		cfg := ratelimit.GetEndpointConfig(ctx)
		if cfg == nil || cfg.Disabled {
			next(ctx)

			return
		}

		scope := ratelimit.ScopeOf(ctx)

		controller, ok := controllers[scope]
		if !ok {
			logger.Debug("no admission controller for scope", zap.String("scope", scope))
			next(ctx)

			return
		}

		key := scope + ":" + clientIP(ctx)

		if controller.IsAllowed(ctx.Context(), key) {
			next(ctx)

			return
		}

		retryAfter := max(controller.RemainingSeconds(ctx.Context(), key), 1)

		logger.Warn("admission denied",
			zap.String("scope", scope),
			zap.String("method", ctx.Method()),
			zap.String("clientIp", clientIP(ctx)),
			zap.Int("retryAfter", retryAfter),
		)

		WriteTooManyRequests(api, ctx, retryAfter)
	}
}

// WriteTooManyRequests writes a 429 problem response with a Retry-After header.
func WriteTooManyRequests(api huma.API, ctx huma.Context, retryAfter int) {
	ctx.SetHeader("Retry-After", strconv.Itoa(retryAfter))

	_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests, "too many requests",
		&huma.ErrorDetail{Location: "retryAfter", Value: retryAfter})
}
