package ratelimit

import "github.com/danielgtaylor/huma/v2"

// MetadataKey is the key used to store admission config in operation metadata.
const MetadataKey = "admission"

// EndpointConfig defines per-endpoint admission behavior for the HTTP
// middleware. It is attached to Huma operations via the Metadata field.
type EndpointConfig struct {
	// Scope namespaces the keys counted for this endpoint. Operations with the
	// same Scope share counters per client. Empty falls back to the operation ID.
	Scope string

	// Disabled skips the middleware entirely, for operations that are not
	// guarded or that run their own admission check with a richer key.
	Disabled bool
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	return &cfg
}

// ScopeOf returns the counter namespace for the operation in ctx.
func ScopeOf(ctx huma.Context) string {
	if cfg := GetEndpointConfig(ctx); cfg != nil && cfg.Scope != "" {
		return cfg.Scope
	}

	if op := ctx.Operation(); op != nil {
		if op.OperationID != "" {
			return op.OperationID
		}

		return op.Path
	}

	return "global"
}
